// Package calendar maps iCalendar objects to a typed event view and back.
//
// An Object owns the decoded calendar, so properties and components the
// typed view does not model survive an update untouched.
package calendar

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/emersion/go-ical"
	"github.com/ncmcp/ncclient/ncerr"
)

const productID = "-//github.com/ncmcp/ncclient//NONSGML v1.0//EN"

// now is the clock used for DTSTAMP and LAST-MODIFIED.
var now = time.Now

// Object is one calendar resource as stored on the server.
type Object struct {
	Cal  *ical.Calendar
	Href string
	ETag string
}

// Parse decodes an iCalendar payload. The first VEVENT is the event; it
// must carry UID and DTSTART.
func Parse(data []byte) (*Object, error) {
	cal, err := ical.NewDecoder(bytes.NewReader(data)).Decode()
	if err != nil {
		return nil, ncerr.Malformed("parse", "", fmt.Errorf("failed to decode calendar: %w", err))
	}
	obj := &Object{Cal: cal}
	comp := obj.component()
	if comp == nil {
		return nil, ncerr.Malformed("parse", "", errors.New("calendar has no VEVENT"))
	}
	uid := comp.Props.Get(ical.PropUID)
	if uid == nil || uid.Value == "" {
		return nil, ncerr.Malformed("parse", "", errors.New("event has no UID"))
	}
	if comp.Props.Get(ical.PropDateTimeStart) == nil {
		return nil, ncerr.Malformed("parse", uid.Value, errors.New("event has no DTSTART"))
	}
	if _, err := obj.Event(); err != nil {
		return nil, err
	}
	return obj, nil
}

// component returns the master VEVENT: the first one without a
// RECURRENCE-ID, or the first VEVENT when every one is an override.
func (o *Object) component() *ical.Component {
	if o == nil || o.Cal == nil {
		return nil
	}
	var first *ical.Component
	for _, child := range o.Cal.Children {
		if child.Name != ical.CompEvent {
			continue
		}
		if child.Props.Get(ical.PropRecurrenceID) == nil {
			return child
		}
		if first == nil {
			first = child
		}
	}
	return first
}

// UID returns the event's UID.
func (o *Object) UID() string {
	comp := o.component()
	if comp == nil {
		return ""
	}
	if p := comp.Props.Get(ical.PropUID); p != nil {
		return p.Value
	}
	return ""
}

// Event returns the typed view of the first VEVENT.
func (o *Object) Event() (Event, error) {
	comp := o.component()
	if comp == nil {
		return Event{}, ncerr.Malformed("parse", o.Href, errors.New("calendar has no VEVENT"))
	}
	ev, err := eventFromComponent(comp)
	if err != nil {
		return Event{}, ncerr.Malformed("parse", o.Href, err)
	}
	return ev, nil
}

// Bytes serializes the object, filling in the properties the encoder
// requires.
func (o *Object) Bytes() ([]byte, error) {
	if o.Cal.Props.Get(ical.PropProductID) == nil {
		o.Cal.Props.SetText(ical.PropProductID, productID)
	}
	if o.Cal.Props.Get(ical.PropVersion) == nil {
		o.Cal.Props.SetText(ical.PropVersion, "2.0")
	}
	for _, child := range o.Cal.Children {
		if child.Name == ical.CompEvent && child.Props.Get(ical.PropDateTimeStamp) == nil {
			child.Props.SetDateTime(ical.PropDateTimeStamp, now().UTC())
		}
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(o.Cal); err != nil {
		return nil, fmt.Errorf("failed to encode calendar: %w", err)
	}
	return buf.Bytes(), nil
}
