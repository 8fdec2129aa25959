package feed

// Raw decoded GTFS-Realtime model. Field presence follows the wire format:
// optional numeric fields are pointers, optional strings are empty when
// absent, and repeated fields are slices in feed order.

// FeedMessage is one decoded feed. Created once per successful decode and
// never mutated afterwards.
type FeedMessage struct {
	Version   string
	Timestamp int64
	Entities  []Entity
}

// Entity carries at most one of TripUpdate, Vehicle, or Alert. The decoder
// does not enforce exclusivity; shaping drops entities without a payload.
type Entity struct {
	ID         string
	Deleted    bool
	TripUpdate *TripUpdate
	Vehicle    *VehiclePosition
	Alert      *Alert
}

type TripDescriptor struct {
	TripID               string
	RouteID              string
	DirectionID          *uint32
	StartTime            string
	StartDate            string
	ScheduleRelationship *uint32
}

type VehicleDescriptor struct {
	ID    string
	Label string
}

// StopTimeEvent holds either a delay, an absolute time, or both.
// Delay survives the 32-bit varint truncation because the low 32 bits of a
// negative 64-bit varint are exactly its two's-complement 32-bit form.
type StopTimeEvent struct {
	Delay *int32
	Time  *int64
}

type StopTimeUpdate struct {
	StopSequence         *uint32
	StopID               string
	Arrival              *StopTimeEvent
	Departure            *StopTimeEvent
	ScheduleRelationship *uint32
}

type TripUpdate struct {
	Trip            TripDescriptor
	Vehicle         *VehicleDescriptor
	StopTimeUpdates []StopTimeUpdate
	Timestamp       *int64
}

type Position struct {
	Latitude  float64
	Longitude float64
	Bearing   *float64
	Speed     *float64
}

// Vehicle current_status values.
const (
	StatusIncomingAt  = 0
	StatusStoppedAt   = 1
	StatusInTransitTo = 2
)

type VehiclePosition struct {
	Trip                *TripDescriptor
	Vehicle             *VehicleDescriptor
	Position            *Position
	CurrentStopSequence *uint32
	StopID              string
	CurrentStatus       *uint32
	Timestamp           *int64
}

type TimeRange struct {
	Start *int64
	End   *int64
}

type EntitySelector struct {
	RouteID string
	StopID  string
	Trip    *TripDescriptor
}

type Alert struct {
	ActivePeriods    []TimeRange
	InformedEntities []EntitySelector
	Cause            *uint32
	Effect           *uint32
	HeaderText       string
	DescriptionText  string
}
