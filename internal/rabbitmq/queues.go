package rabbitmq

const (
	// NotificationsExchange обменник уведомлений пользователям.
	NotificationsExchange = "notifications"
	// TrialQueue очередь уведомлений об окончании пробного периода.
	TrialQueue = "notifications.trial"
	// TrialExpiringKey ключ маршрутизации для TrialQueue.
	TrialExpiringKey = "trial.expiring"

	prefetchCount = 10
)

// QueueConfig очередь и её ключ маршрутизации.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetNotificationQueues очереди, которые слушает рассыльщик.
func GetNotificationQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: TrialQueue, RoutingKey: TrialExpiringKey},
	}
}
