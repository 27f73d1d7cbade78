// Package database opens the PostgreSQL pool that backs persistent
// component preferences.
package database
