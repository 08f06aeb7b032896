package outbox

// Event is one row of the transactional outbox. The publisher relays it to the
// Kafka topic named by EventType, keyed by AggregateID so all events of one
// appointment land on the same partition.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}
