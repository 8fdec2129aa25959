package feed

import (
	"metrolive.transitwatch.org/internal/wire"
)

// DecodeFeed decodes a GTFS-Realtime v2 FeedMessage from raw protobuf bytes.
// Every message decoder follows the same dispatch: loop over tags until the
// buffer is exhausted, decode fields it knows by (field, wireType), and skip
// everything else by wire type alone, which keeps the decoder forward
// compatible with schema additions.
//
// Any failure discards the whole message; callers must treat it as "no feed
// available this cycle".
func DecodeFeed(buf []byte) (*FeedMessage, error) {
	r := wire.NewReader(buf)
	msg := &FeedMessage{
		Version:  "2.0",
		Entities: []Entity{},
	}

	for !r.Done() {
		field, wireType := r.ReadTag()
		switch {
		case field == 1 && wireType == wire.WireLengthDelimited:
			if err := decodeHeader(r.Sub(), msg); err != nil {
				return nil, &DecodeError{Err: err}
			}
		case field == 2 && wireType == wire.WireLengthDelimited:
			entity, err := decodeEntity(r.Sub())
			if err != nil {
				return nil, &DecodeError{Err: err}
			}
			msg.Entities = append(msg.Entities, entity)
		default:
			r.Skip(wireType)
		}
	}
	if err := r.Err(); err != nil {
		return nil, &DecodeError{Err: err}
	}
	return msg, nil
}

func decodeHeader(r *wire.Reader, msg *FeedMessage) error {
	for !r.Done() {
		field, wireType := r.ReadTag()
		switch {
		case field == 1 && wireType == wire.WireLengthDelimited:
			msg.Version = r.ReadString()
		case field == 3 && wireType == wire.WireVarint:
			msg.Timestamp = int64(r.ReadVarint())
		default:
			r.Skip(wireType)
		}
	}
	return r.Err()
}

func decodeEntity(r *wire.Reader) (Entity, error) {
	var e Entity
	for !r.Done() {
		field, wireType := r.ReadTag()
		switch {
		case field == 1 && wireType == wire.WireLengthDelimited:
			e.ID = r.ReadString()
		case field == 2 && wireType == wire.WireVarint:
			e.Deleted = r.ReadVarint() != 0
		case field == 3 && wireType == wire.WireLengthDelimited:
			tu, err := decodeTripUpdate(r.Sub())
			if err != nil {
				return e, err
			}
			e.TripUpdate = tu
		case field == 4 && wireType == wire.WireLengthDelimited:
			vp, err := decodeVehiclePosition(r.Sub())
			if err != nil {
				return e, err
			}
			e.Vehicle = vp
		case field == 5 && wireType == wire.WireLengthDelimited:
			a, err := decodeAlert(r.Sub())
			if err != nil {
				return e, err
			}
			e.Alert = a
		default:
			r.Skip(wireType)
		}
	}
	return e, r.Err()
}

func decodeTripDescriptor(r *wire.Reader) (TripDescriptor, error) {
	var t TripDescriptor
	for !r.Done() {
		field, wireType := r.ReadTag()
		switch {
		case field == 1 && wireType == wire.WireLengthDelimited:
			t.TripID = r.ReadString()
		case field == 3 && wireType == wire.WireLengthDelimited:
			t.RouteID = r.ReadString()
		case field == 4 && wireType == wire.WireVarint:
			v := r.ReadVarint()
			t.DirectionID = &v
		case field == 5 && wireType == wire.WireLengthDelimited:
			t.StartTime = r.ReadString()
		case field == 6 && wireType == wire.WireLengthDelimited:
			t.StartDate = r.ReadString()
		case field == 7 && wireType == wire.WireVarint:
			v := r.ReadVarint()
			t.ScheduleRelationship = &v
		default:
			r.Skip(wireType)
		}
	}
	return t, r.Err()
}

func decodeVehicleDescriptor(r *wire.Reader) (VehicleDescriptor, error) {
	var v VehicleDescriptor
	for !r.Done() {
		field, wireType := r.ReadTag()
		switch {
		case field == 1 && wireType == wire.WireLengthDelimited:
			v.ID = r.ReadString()
		case field == 2 && wireType == wire.WireLengthDelimited:
			v.Label = r.ReadString()
		default:
			r.Skip(wireType)
		}
	}
	return v, r.Err()
}

func decodeStopTimeEvent(r *wire.Reader) (*StopTimeEvent, error) {
	var e StopTimeEvent
	for !r.Done() {
		field, wireType := r.ReadTag()
		switch {
		case field == 1 && wireType == wire.WireVarint:
			v := int32(r.ReadVarint())
			e.Delay = &v
		case field == 2 && wireType == wire.WireVarint:
			v := int64(r.ReadVarint())
			e.Time = &v
		default:
			r.Skip(wireType)
		}
	}
	return &e, r.Err()
}

func decodeStopTimeUpdate(r *wire.Reader) (StopTimeUpdate, error) {
	var s StopTimeUpdate
	for !r.Done() {
		field, wireType := r.ReadTag()
		switch {
		case field == 1 && wireType == wire.WireVarint:
			v := r.ReadVarint()
			s.StopSequence = &v
		case field == 2 && wireType == wire.WireLengthDelimited:
			ev, err := decodeStopTimeEvent(r.Sub())
			if err != nil {
				return s, err
			}
			s.Arrival = ev
		case field == 3 && wireType == wire.WireLengthDelimited:
			ev, err := decodeStopTimeEvent(r.Sub())
			if err != nil {
				return s, err
			}
			s.Departure = ev
		case field == 4 && wireType == wire.WireLengthDelimited:
			s.StopID = r.ReadString()
		case field == 5 && wireType == wire.WireVarint:
			v := r.ReadVarint()
			s.ScheduleRelationship = &v
		default:
			r.Skip(wireType)
		}
	}
	return s, r.Err()
}

func decodeTripUpdate(r *wire.Reader) (*TripUpdate, error) {
	u := &TripUpdate{StopTimeUpdates: []StopTimeUpdate{}}
	for !r.Done() {
		field, wireType := r.ReadTag()
		switch {
		case field == 1 && wireType == wire.WireLengthDelimited:
			trip, err := decodeTripDescriptor(r.Sub())
			if err != nil {
				return nil, err
			}
			u.Trip = trip
		case field == 2 && wireType == wire.WireLengthDelimited:
			stu, err := decodeStopTimeUpdate(r.Sub())
			if err != nil {
				return nil, err
			}
			u.StopTimeUpdates = append(u.StopTimeUpdates, stu)
		case field == 3 && wireType == wire.WireLengthDelimited:
			vd, err := decodeVehicleDescriptor(r.Sub())
			if err != nil {
				return nil, err
			}
			u.Vehicle = &vd
		case field == 4 && wireType == wire.WireVarint:
			v := int64(r.ReadVarint())
			u.Timestamp = &v
		default:
			r.Skip(wireType)
		}
	}
	return u, r.Err()
}

func decodePosition(r *wire.Reader) (*Position, error) {
	var p Position
	for !r.Done() {
		field, wireType := r.ReadTag()
		switch {
		case field == 1 && wireType == wire.Wire32Bit:
			p.Latitude = float64(r.ReadFloat32())
		case field == 2 && wireType == wire.Wire32Bit:
			p.Longitude = float64(r.ReadFloat32())
		case field == 3 && wireType == wire.Wire32Bit:
			v := float64(r.ReadFloat32())
			p.Bearing = &v
		case field == 4 && wireType == wire.Wire64Bit:
			// odometer, unused
			r.Skip(wireType)
		case field == 5 && wireType == wire.Wire32Bit:
			v := float64(r.ReadFloat32())
			p.Speed = &v
		default:
			r.Skip(wireType)
		}
	}
	return &p, r.Err()
}

func decodeVehiclePosition(r *wire.Reader) (*VehiclePosition, error) {
	v := &VehiclePosition{}
	for !r.Done() {
		field, wireType := r.ReadTag()
		switch {
		case field == 1 && wireType == wire.WireLengthDelimited:
			trip, err := decodeTripDescriptor(r.Sub())
			if err != nil {
				return nil, err
			}
			v.Trip = &trip
		case field == 2 && wireType == wire.WireLengthDelimited:
			pos, err := decodePosition(r.Sub())
			if err != nil {
				return nil, err
			}
			v.Position = pos
		case field == 3 && wireType == wire.WireVarint:
			n := r.ReadVarint()
			v.CurrentStopSequence = &n
		case field == 4 && wireType == wire.WireVarint:
			n := r.ReadVarint()
			v.CurrentStatus = &n
		case field == 5 && wireType == wire.WireVarint:
			n := int64(r.ReadVarint())
			v.Timestamp = &n
		case field == 7 && wireType == wire.WireLengthDelimited:
			v.StopID = r.ReadString()
		case field == 8 && wireType == wire.WireLengthDelimited:
			vd, err := decodeVehicleDescriptor(r.Sub())
			if err != nil {
				return nil, err
			}
			v.Vehicle = &vd
		default:
			r.Skip(wireType)
		}
	}
	return v, r.Err()
}

// decodeTranslatedString keeps only the text of the translations it sees;
// localization is not modeled.
func decodeTranslatedString(r *wire.Reader) (string, error) {
	var text string
	for !r.Done() {
		field, wireType := r.ReadTag()
		if field == 1 && wireType == wire.WireLengthDelimited {
			sub := r.Sub()
			for !sub.Done() {
				f, wt := sub.ReadTag()
				if f == 1 && wt == wire.WireLengthDelimited {
					text = sub.ReadString()
				} else {
					sub.Skip(wt)
				}
			}
			if err := sub.Err(); err != nil {
				return "", err
			}
		} else {
			r.Skip(wireType)
		}
	}
	return text, r.Err()
}

func decodeTimeRange(r *wire.Reader) (TimeRange, error) {
	var t TimeRange
	for !r.Done() {
		field, wireType := r.ReadTag()
		switch {
		case field == 1 && wireType == wire.WireVarint:
			v := int64(r.ReadVarint())
			t.Start = &v
		case field == 2 && wireType == wire.WireVarint:
			v := int64(r.ReadVarint())
			t.End = &v
		default:
			r.Skip(wireType)
		}
	}
	return t, r.Err()
}

func decodeEntitySelector(r *wire.Reader) (EntitySelector, error) {
	var e EntitySelector
	for !r.Done() {
		field, wireType := r.ReadTag()
		switch {
		case field == 1 && wireType == wire.WireLengthDelimited:
			e.RouteID = r.ReadString()
		case field == 4 && wireType == wire.WireLengthDelimited:
			e.StopID = r.ReadString()
		case field == 5 && wireType == wire.WireLengthDelimited:
			trip, err := decodeTripDescriptor(r.Sub())
			if err != nil {
				return e, err
			}
			e.Trip = &trip
		default:
			r.Skip(wireType)
		}
	}
	return e, r.Err()
}

func decodeAlert(r *wire.Reader) (*Alert, error) {
	a := &Alert{
		ActivePeriods:    []TimeRange{},
		InformedEntities: []EntitySelector{},
	}
	for !r.Done() {
		field, wireType := r.ReadTag()
		switch {
		case field == 1 && wireType == wire.WireLengthDelimited:
			tr, err := decodeTimeRange(r.Sub())
			if err != nil {
				return nil, err
			}
			a.ActivePeriods = append(a.ActivePeriods, tr)
		case field == 5 && wireType == wire.WireLengthDelimited:
			sel, err := decodeEntitySelector(r.Sub())
			if err != nil {
				return nil, err
			}
			a.InformedEntities = append(a.InformedEntities, sel)
		case field == 6 && wireType == wire.WireVarint:
			v := r.ReadVarint()
			a.Cause = &v
		case field == 7 && wireType == wire.WireVarint:
			v := r.ReadVarint()
			a.Effect = &v
		case field == 8 && wireType == wire.WireLengthDelimited:
			text, err := decodeTranslatedString(r.Sub())
			if err != nil {
				return nil, err
			}
			a.HeaderText = text
		case field == 11 && wireType == wire.WireLengthDelimited:
			text, err := decodeTranslatedString(r.Sub())
			if err != nil {
				return nil, err
			}
			a.DescriptionText = text
		default:
			r.Skip(wireType)
		}
	}
	return a, r.Err()
}
