package domain

import "time"

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_SERIAL       = "serial"
	ACTOR_ID_MONITOR      = "monitor"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

type ReadSerialRequest struct {
	ActorRequestMixIn
	MaxBytes int
}

type ReadSerialResponse struct {
	ActorResponseMixIn
	Data []byte
}

type WriteSerialRequest struct {
	ActorRequestMixIn
	Frames [][]byte
	Gap    time.Duration
}

type WriteSerialResponse struct {
	ActorResponseMixIn
	BytesWritten int
}

type GetSnapshotRequest struct {
	ActorRequestMixIn
}

type GetSnapshotResponse struct {
	ActorResponseMixIn
	Snapshot Snapshot
}

type GetDeviceRequest struct {
	ActorRequestMixIn
	Address string
}

type GetDeviceResponse struct {
	ActorResponseMixIn
	Device *DeviceRecord
}

type GetNodeTableRequest struct {
	ActorRequestMixIn
}

type GetNodeTableResponse struct {
	ActorResponseMixIn
	Nodes []DeviceProfile
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors []GenericSensor
	Buttons []GenericButton
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}

// DeviceDiscoveredEvent is published on the event stream when an optimizer
// is registered for the first time.
type DeviceDiscoveredEvent struct {
	Device DeviceRecord
}
