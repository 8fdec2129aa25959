package feed

import "math"

// Shaped API model. JSON field names are part of the public contract and are
// consumed by the polling client, so they stay camelCase and stable.

// Snapshot is the shaped feed served by the API. Slices are always non-nil so
// consumers never see null arrays.
type Snapshot struct {
	FeedTimestamp int64            `json:"feedTimestamp"`
	FetchedAt     int64            `json:"fetchedAt"`
	Counts        Counts           `json:"counts"`
	TripUpdates   []TripUpdateView `json:"tripUpdates"`
	Vehicles      []VehicleView    `json:"vehicles"`
	Alerts        []AlertView      `json:"alerts"`
}

type Counts struct {
	TripUpdates int `json:"tripUpdates"`
	Vehicles    int `json:"vehicles"`
	Alerts      int `json:"alerts"`
}

type TripUpdateView struct {
	EntityID        string               `json:"entityId"`
	TripID          string               `json:"tripId"`
	RouteID         string               `json:"routeId"`
	DirectionID     *uint32              `json:"directionId,omitempty"`
	StartTime       string               `json:"startTime,omitempty"`
	StartDate       string               `json:"startDate,omitempty"`
	VehicleID       string               `json:"vehicleId,omitempty"`
	StopTimeUpdates []StopTimeUpdateView `json:"stopTimeUpdates"`
}

type StopTimeUpdateView struct {
	StopID       string         `json:"stopId,omitempty"`
	StopSequence *uint32        `json:"stopSequence,omitempty"`
	Arrival      *StopEventView `json:"arrival,omitempty"`
	Departure    *StopEventView `json:"departure,omitempty"`
}

// StopEventView carries a delay (zero when the feed omits it), the absolute
// epoch time, and MinutesAway derived from it. MinutesAway is negative once
// the event has already passed.
type StopEventView struct {
	Delay       int32  `json:"delay"`
	Time        *int64 `json:"time,omitempty"`
	MinutesAway *int   `json:"minutesAway,omitempty"`
}

type VehicleView struct {
	EntityID            string   `json:"entityId"`
	VehicleID           string   `json:"vehicleId"`
	VehicleLabel        string   `json:"vehicleLabel,omitempty"`
	TripID              string   `json:"tripId,omitempty"`
	RouteID             string   `json:"routeId,omitempty"`
	DirectionID         *uint32  `json:"directionId,omitempty"`
	Latitude            *float64 `json:"latitude,omitempty"`
	Longitude           *float64 `json:"longitude,omitempty"`
	Bearing             *float64 `json:"bearing,omitempty"`
	Speed               *float64 `json:"speed,omitempty"`
	StopID              string   `json:"stopId,omitempty"`
	CurrentStopSequence *uint32  `json:"currentStopSequence,omitempty"`
	Status              uint32   `json:"status"`
	StatusLabel         string   `json:"statusLabel"`
	Timestamp           *int64   `json:"timestamp,omitempty"`
	SecondsAgo          *int64   `json:"secondsAgo,omitempty"`
}

type AlertView struct {
	EntityID        string       `json:"entityId"`
	HeaderText      string       `json:"headerText"`
	DescriptionText string       `json:"descriptionText"`
	Cause           string       `json:"cause"`
	Effect          string       `json:"effect"`
	AffectedRoutes  []string     `json:"affectedRoutes"`
	AffectedStops   []string     `json:"affectedStops"`
	ActivePeriod    []PeriodView `json:"activePeriod"`
}

type PeriodView struct {
	Start *int64 `json:"start,omitempty"`
	End   *int64 `json:"end,omitempty"`
}

var causeLabels = map[uint32]string{
	1:  "Unknown",
	2:  "Other",
	3:  "Technical problem",
	4:  "Strike",
	5:  "Demonstration",
	6:  "Accident",
	7:  "Holiday",
	8:  "Weather",
	9:  "Maintenance",
	10: "Construction",
	11: "Police activity",
	12: "Medical emergency",
}

var effectLabels = map[uint32]string{
	1:  "No service",
	2:  "Reduced service",
	3:  "Significant delays",
	4:  "Detour",
	5:  "Additional service",
	6:  "Modified service",
	7:  "Other effect",
	8:  "Unknown effect",
	9:  "Stop moved",
	10: "No effect",
	11: "Accessibility issue",
}

// CauseLabel maps a GTFS-RT alert cause code to a display label. Absent or
// unrecognized codes resolve to "Unknown".
func CauseLabel(code *uint32) string {
	c := uint32(1)
	if code != nil {
		c = *code
	}
	if label, ok := causeLabels[c]; ok {
		return label
	}
	return "Unknown"
}

// EffectLabel maps an alert effect code to a display label. Absent or
// unrecognized codes resolve to "Unknown effect".
func EffectLabel(code *uint32) string {
	e := uint32(8)
	if code != nil {
		e = *code
	}
	if label, ok := effectLabels[e]; ok {
		return label
	}
	return "Unknown effect"
}

// StatusLabel maps a vehicle current_status code to its display label.
func StatusLabel(status *uint32) string {
	if status == nil {
		return "In transit"
	}
	switch *status {
	case StatusIncomingAt:
		return "Approaching"
	case StatusStoppedAt:
		return "Stopped"
	default:
		return "In transit"
	}
}

// Shape converts a decoded feed into the API snapshot. Deleted entities and
// entities without a payload are dropped; every derived time field is relative
// to nowEpochSeconds so callers control the clock.
func Shape(msg *FeedMessage, nowEpochSeconds int64) *Snapshot {
	snap := &Snapshot{
		FeedTimestamp: msg.Timestamp,
		FetchedAt:     nowEpochSeconds,
		TripUpdates:   []TripUpdateView{},
		Vehicles:      []VehicleView{},
		Alerts:        []AlertView{},
	}

	for _, e := range msg.Entities {
		if e.Deleted {
			continue
		}
		switch {
		case e.TripUpdate != nil:
			snap.TripUpdates = append(snap.TripUpdates, shapeTripUpdate(e.ID, e.TripUpdate, nowEpochSeconds))
		case e.Vehicle != nil:
			snap.Vehicles = append(snap.Vehicles, shapeVehicle(e.ID, e.Vehicle, nowEpochSeconds))
		case e.Alert != nil:
			snap.Alerts = append(snap.Alerts, shapeAlert(e.ID, e.Alert))
		}
	}

	snap.Counts = Counts{
		TripUpdates: len(snap.TripUpdates),
		Vehicles:    len(snap.Vehicles),
		Alerts:      len(snap.Alerts),
	}
	return snap
}

func shapeStopEvent(ev *StopTimeEvent, now int64) *StopEventView {
	if ev == nil {
		return nil
	}
	view := &StopEventView{}
	if ev.Delay != nil {
		view.Delay = *ev.Delay
	}
	if ev.Time != nil {
		t := *ev.Time
		view.Time = &t
		// round half up, so -0.5 minutes reports as 0, not -1
		minutes := int(math.Floor(float64(t-now)/60 + 0.5))
		view.MinutesAway = &minutes
	}
	return view
}

func shapeTripUpdate(entityID string, tu *TripUpdate, now int64) TripUpdateView {
	view := TripUpdateView{
		EntityID:        entityID,
		TripID:          tu.Trip.TripID,
		RouteID:         tu.Trip.RouteID,
		DirectionID:     tu.Trip.DirectionID,
		StartTime:       tu.Trip.StartTime,
		StartDate:       tu.Trip.StartDate,
		StopTimeUpdates: []StopTimeUpdateView{},
	}
	if tu.Vehicle != nil {
		view.VehicleID = tu.Vehicle.ID
	}
	for _, stu := range tu.StopTimeUpdates {
		view.StopTimeUpdates = append(view.StopTimeUpdates, StopTimeUpdateView{
			StopID:       stu.StopID,
			StopSequence: stu.StopSequence,
			Arrival:      shapeStopEvent(stu.Arrival, now),
			Departure:    shapeStopEvent(stu.Departure, now),
		})
	}
	return view
}

func shapeVehicle(entityID string, v *VehiclePosition, now int64) VehicleView {
	view := VehicleView{
		EntityID:            entityID,
		VehicleID:           entityID,
		StopID:              v.StopID,
		CurrentStopSequence: v.CurrentStopSequence,
		Status:              StatusInTransitTo,
		StatusLabel:         StatusLabel(v.CurrentStatus),
		Timestamp:           v.Timestamp,
	}
	if v.Vehicle != nil {
		if v.Vehicle.ID != "" {
			view.VehicleID = v.Vehicle.ID
		}
		view.VehicleLabel = v.Vehicle.Label
	}
	if v.Trip != nil {
		view.TripID = v.Trip.TripID
		view.RouteID = v.Trip.RouteID
		view.DirectionID = v.Trip.DirectionID
	}
	if v.Position != nil {
		lat, lng := v.Position.Latitude, v.Position.Longitude
		view.Latitude = &lat
		view.Longitude = &lng
		view.Bearing = v.Position.Bearing
		view.Speed = v.Position.Speed
	}
	if v.CurrentStatus != nil {
		view.Status = *v.CurrentStatus
	}
	if v.Timestamp != nil {
		ago := now - *v.Timestamp
		view.SecondsAgo = &ago
	}
	return view
}

func shapeAlert(entityID string, a *Alert) AlertView {
	view := AlertView{
		EntityID:        entityID,
		HeaderText:      a.HeaderText,
		DescriptionText: a.DescriptionText,
		Cause:           CauseLabel(a.Cause),
		Effect:          EffectLabel(a.Effect),
		AffectedRoutes:  []string{},
		AffectedStops:   []string{},
		ActivePeriod:    []PeriodView{},
	}
	for _, ie := range a.InformedEntities {
		if ie.RouteID != "" {
			view.AffectedRoutes = append(view.AffectedRoutes, ie.RouteID)
		}
		if ie.StopID != "" {
			view.AffectedStops = append(view.AffectedStops, ie.StopID)
		}
	}
	for _, tr := range a.ActivePeriods {
		view.ActivePeriod = append(view.ActivePeriod, PeriodView{Start: tr.Start, End: tr.End})
	}
	return view
}
