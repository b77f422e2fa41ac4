package domain

// EventPublisher fans an event out to every connected consumer.
type EventPublisher interface {
	Broadcast(event Event) int
}
