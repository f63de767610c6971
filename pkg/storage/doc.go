// Package storage provides persistent storage for the lunch bot.
// It uses BadgerDB as the embedded database and stores entities as JSON values.
package storage
