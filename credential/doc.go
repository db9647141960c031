// Package credential reads platform accounts from PostgreSQL for the examauth
// engine.
//
// The users table belongs to the platform's account service. PostgresStore
// only reads it and touches last_login_at; Create exists for seeding and load
// tests.
package credential
