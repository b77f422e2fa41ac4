// Package redis fans control commands in over Redis pub/sub and publishes them for other
// instances.
package redis
