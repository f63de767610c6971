// Package scheduler fires the daily reminder dispatch at the
// configured notify hour.
package scheduler
