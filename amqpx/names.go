package amqpx

// ExchangeName and QueueName give broker resource names distinct types so
// call sites cannot pass an exchange where a queue is expected. A
// service's delayed exchange shares the same literal string as its main
// queue name — the type boundary here is what keeps that
// confusable-by-string-value design from becoming confusable-by-compiler
// too.
type ExchangeName string

type QueueName string

func (e ExchangeName) String() string { return string(e) }
func (q QueueName) String() string    { return string(q) }
