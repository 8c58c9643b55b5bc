// Package armory builds Battle.net community API lookups (realms, characters,
// guilds, arena teams, auctions) on top of the revalidation pipeline. Each
// lookup maps to a registered resource that fixes its cache group, key layout
// and cache strategy.
package armory
