package resource

import "github.com/armory-kit/armory/internal/cache"

// 内置资源键。
const (
	RealmStatus = "realm_status"
	RealmList   = "realm_list"
	Character   = "character"
	Guild       = "guild"
	ArenaTeam   = "arena_team"
	Auction     = "auction"
	ArenaLadder = "arena_ladder"
	Item        = "item"
	Quest       = "quest"
	Data        = "data"
)

func init() {
	MustRegister(Metadata{
		Key:         RealmStatus,
		Description: "realm status for a whole region",
		Group:       cache.GroupRealms,
		Method:      "realm/status",
	})
	MustRegister(Metadata{
		Key:         RealmList,
		Description: "realm names of a region",
		Group:       cache.GroupMisc,
		Method:      "realm/status",
		Strategy:    Strategy{TTLScale: 20},
	})
	MustRegister(Metadata{
		Key:         Character,
		Description: "character profile",
		Group:       cache.GroupCharacters,
		Method:      "character",
	})
	MustRegister(Metadata{
		Key:         Guild,
		Description: "guild profile",
		Group:       cache.GroupGuilds,
		Method:      "guild",
	})
	MustRegister(Metadata{
		Key:         ArenaTeam,
		Description: "arena team profile",
		Group:       cache.GroupArenaTeams,
		Method:      "arena",
	})
	MustRegister(Metadata{
		Key:         Auction,
		Description: "auction data dump index",
		Group:       cache.GroupAuctionData,
		Method:      "auction/data",
		Strategy:    Strategy{TTLScale: 0.1},
	})
	MustRegister(Metadata{
		Key:         ArenaLadder,
		Description: "battlegroup arena ladder",
		Group:       cache.GroupMisc,
		Method:      "pvp/arena",
	})
	// 物品、任务与 data/* 是静态游戏数据，很少变化
	MustRegister(Metadata{
		Key:         Item,
		Description: "item information by id",
		Group:       cache.GroupMisc,
		Method:      "item",
		Strategy:    Strategy{TTLScale: 24},
	})
	MustRegister(Metadata{
		Key:         Quest,
		Description: "quest information by id",
		Group:       cache.GroupMisc,
		Method:      "quest",
		Strategy:    Strategy{TTLScale: 24},
	})
	MustRegister(Metadata{
		Key:         Data,
		Description: "static data resource such as character/races",
		Group:       cache.GroupMisc,
		Method:      "data",
		Strategy:    Strategy{TTLScale: 24},
	})
}
