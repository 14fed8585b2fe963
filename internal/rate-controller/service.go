/*
tc2-rate-controller - Adaptive transmission rate controller
Copyright (C) 2024, The Cacophony Project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package ratecontroller

import (
	"errors"

	"github.com/TheCacophonyProject/tc2-rate-controller/ratecontrol"
	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"
)

const (
	dbusName = "org.cacophony.RateController"
	dbusPath = "/org/cacophony/RateController"

	sendIntervalChangedSignal = "SendIntervalChanged"
)

type service struct {
	runner *runner
}

func startService(r *runner) (*dbus.Conn, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return nil, err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return nil, errors.New("name already taken")
	}

	s := &service{
		runner: r,
	}
	if err := conn.Export(s, dbusPath, dbusName); err != nil {
		return nil, err
	}
	if err := conn.Export(genIntrospectable(s), dbusPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return nil, err
	}
	return conn, nil
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    dbusName,
			Methods: introspect.Methods(v),
			Signals: []introspect.Signal{{
				Name: sendIntervalChangedSignal,
				Args: []introspect.Arg{
					{Name: "interval", Type: "q"},
					{Name: "mode", Type: "s"},
					{Name: "radioOff", Type: "b"},
					{Name: "radioAlwaysOn", Type: "b"},
				},
			}},
		}},
	}
	return introspect.NewIntrospectable(node)
}

// signalArgs are the SendIntervalChanged arguments for a decision. The radio
// flags tell the radio owner to switch off until the next tick, or to stay on.
func signalArgs(d ratecontrol.Decision) []interface{} {
	return []interface{}{d.Interval, d.Mode.String(), d.RadioOff, d.RadioAlwaysOn}
}

// signalPublisher returns a publish function that emits SendIntervalChanged
// on conn.
func signalPublisher(conn *dbus.Conn) func(ratecontrol.Decision) {
	return func(d ratecontrol.Decision) {
		err := conn.Emit(dbusPath, dbusName+"."+sendIntervalChangedSignal, signalArgs(d)...)
		if err != nil {
			log.Errorf("Failed to emit %s: %v", sendIntervalChangedSignal, err)
		}
	}
}

// GetSendInterval returns the ticks until the next transmission.
func (s service) GetSendInterval() (uint16, *dbus.Error) {
	return s.runner.lastDecision().Interval, nil
}

// GetMode returns the battery mode of the last tick.
func (s service) GetMode() (string, *dbus.Error) {
	return s.runner.lastDecision().Mode.String(), nil
}

func (s service) GetState() ([]int16, []int16, int32, *dbus.Error) {
	state := s.runner.controller.State()
	return state.Params[:], state.Features[:], state.DCSmooth, nil
}

// ResetState returns the controller to its configured initial state.
func (s service) ResetState() *dbus.Error {
	log.Info("Controller state reset requested.")
	if err := s.runner.reset(); err != nil {
		return makeDbusError(".ResetState", err)
	}
	return nil
}

func makeDbusError(name string, err error) *dbus.Error {
	return &dbus.Error{
		Name: dbusName + name,
		Body: []interface{}{err.Error()},
	}
}
