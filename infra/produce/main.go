package produce

import amqp "github.com/rabbitmq/amqp091-go"

type Produce struct {
	JobEvents *JobEventService
}

var produceInstance *Produce

func InitProduce(channel *amqp.Channel) *Produce {
	if produceInstance != nil {
		return produceInstance
	}

	jobEvents := InitJobEventService(channel)
	if jobEvents == nil {
		panic("Failed to initialize Job Event service")
	}

	produceInstance = &Produce{
		JobEvents: jobEvents,
	}

	return produceInstance
}

func GetProduce() *Produce {
	if produceInstance == nil {
		panic("Produce not initialized. Call InitProduce() first.")
	}
	return produceInstance
}
