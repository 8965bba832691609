// Package mq — транспорт task- и командных сообщений поверх RabbitMQ.
//
// Топология:
//
//	chainflow.workflow (direct)
//	└── <topic> — рабочая очередь топика, consumer: воркер чейна
//
//	chainflow.wait (direct)
//	└── <topic>.wait — отложенные переигровки pending-шагов,
//	    per-message TTL, dead-letter обратно в chainflow.workflow
//
//	chainflow.command (fanout)
//	└── эксклюзивная очередь на процесс — pause/resume/shutdown
//
// Доставка at-least-once; дедупликацию обеспечивает идемпотентность
// роутера, а не брокер.
package mq
