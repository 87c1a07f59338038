package types

const (
	ActionRabbitMQConnected       = "rabbitmq_connected"
	ActionRabbitConnectionClosed  = "rabbitmq_connection_closed"
	ActionRabbitConnectionClosing = "rabbitmq_connection_closing"
	ActionRabbitReconnected       = "rabbitmq_reconnection_success"

	ActionDatabaseTransactionFailed = "database_transaction_failed"
	ActionExternalServiceFailed     = "external_service_failed"

	ActionTripCreate     = "trip_create"
	ActionTripTransition = "trip_transition"
	ActionTripCancel     = "trip_cancel"
	ActionTripAppendStop = "trip_append_stop"
	ActionTripSideEffect = "trip_side_effect"

	ActionChannelOpen    = "position_channel_open"
	ActionChannelPublish = "position_channel_publish"
	ActionChannelClose   = "position_channel_close"

	ActionPresenceTrack  = "presence_track"
	ActionPresenceWrite  = "presence_write"
	ActionPresenceStatus = "presence_status"

	ActionSensorWatch = "sensor_watch"
)
