// internal/download/classify.go
package download

import "errors"

// Outcome is the classified result of one download call.
type Outcome struct {
	Status Status

	// Reportable faults are emitted as events and telemetry.
	// Non-reportable ones are only logged.
	Reportable bool

	// Reason is a short, stable description used for telemetry labels.
	Reason string
}

// Reason labels.
const (
	ReasonOK           = "ok"
	ReasonNoDevice     = "no_device"
	ReasonBadDownload  = "bad_download"
	ReasonFraming      = "framing"
	ReasonCRC          = "crc"
	ReasonEmptyPayload = "empty_payload"
	ReasonUnhandled    = "unhandled"
)

// Classify maps the raw result of a download call to an Outcome.
// All faults are transient; the caller always reschedules.
func Classify(d Download, err error) Outcome {
	if err != nil {
		return classifyErr(err)
	}

	switch d.Status {
	case StatusSuccess:
		if d.Payload == nil {
			return Outcome{Status: StatusTransportFault, Reportable: true, Reason: ReasonEmptyPayload}
		}
		return Outcome{Status: StatusSuccess, Reason: ReasonOK}
	case StatusDeviceNotFound:
		return Outcome{Status: StatusDeviceNotFound, Reason: ReasonNoDevice}
	default:
		// The session itself flagged the download as bad.
		return Outcome{Status: d.Status, Reportable: true, Reason: ReasonBadDownload}
	}
}

func classifyErr(err error) Outcome {
	if errors.Is(err, ErrDeviceNotFound) {
		return Outcome{Status: StatusDeviceNotFound, Reason: ReasonNoDevice}
	}

	var fe *FrameError
	if errors.As(err, &fe) {
		return Outcome{Status: StatusTransportFault, Reportable: true, Reason: ReasonFraming}
	}

	var ce *CRCError
	if errors.As(err, &ce) {
		return Outcome{Status: StatusTransportFault, Reportable: true, Reason: ReasonCRC}
	}

	return Outcome{Status: StatusUnknownFault, Reportable: true, Reason: ReasonUnhandled}
}
