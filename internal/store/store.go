// Package store provides the persistence implementations behind the
// engine's BalanceStore collaborator: an in-memory map for tests and single
// node deployments, and a Redis-backed store for anything real.
package store

// DefaultStartingBalance seeds a wallet the first time a user is seen in a
// channel.
const DefaultStartingBalance int64 = 1000
