package ratecontroller

import (
	"time"

	"github.com/TheCacophonyProject/event-reporter/v3/eventclient"
	"github.com/TheCacophonyProject/tc2-rate-controller/ratecontrol"
)

const (
	faultEventType = "rateControllerFault"
	modeEventType  = "rateControllerMode"
	resetEventType = "rateControllerReset"
)

var addEventFn = eventclient.AddEvent

func reportEvent(eventType string, details map[string]interface{}) {
	log.Println("Reporting", eventType)
	err := addEventFn(eventclient.Event{
		Timestamp: time.Now(),
		Type:      eventType,
		Details:   details,
	})
	if err != nil {
		log.Errorf("Failed to report %s event: %v", eventType, err)
	}
}

func reportFault(f ratecontrol.Fault) {
	reportEvent(faultEventType, map[string]interface{}{
		"dc":       f.DC,
		"dcSmooth": f.DCSmooth,
		"dcReal":   f.DCReal,
		"interval": ratecontrol.FallbackInterval,
	})
}

func reportModeChange(from, to ratecontrol.Mode, mv uint16) {
	reportEvent(modeEventType, map[string]interface{}{
		"from":       from.String(),
		"to":         to.String(),
		"millivolts": mv,
	})
}

func reportReset(err error) {
	reportEvent(resetEventType, map[string]interface{}{
		"error": err.Error(),
	})
}
