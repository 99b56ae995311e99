package capability

// Set defines a public type used by authgate APIs.
//
// Set instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Set struct {
	SMS         bool `json:"sms"`
	QR          bool `json:"qr"`
	SSID        bool `json:"ssid"`
	Geolocation bool `json:"geolocation"`
	Smart       bool `json:"smart"`
}

// Resolve computes the methods usable by an account.
//
// Rules:
//   - SMS requires a verified phone number.
//   - QR requires at least one mobile device to scan or display a code.
//   - SSID (proximity) requires a desktop to host the check and a mobile
//     device to supply the signal.
//   - Geolocation requires a mobile device capable of reporting location.
//     A desktop is deliberately not required: the location signal comes from
//     the mobile device alone.
//   - Smart is a convenience alias surfaced exactly when SSID is available.
func Resolve(phoneVerified bool, mobileCount, desktopCount int) Set {
	s := Set{
		SMS:         phoneVerified,
		QR:          mobileCount > 0,
		SSID:        mobileCount > 0 && desktopCount > 0,
		Geolocation: mobileCount > 0,
	}
	s.Smart = s.SSID
	return s
}

// Any reports whether at least one method is usable.
func (s Set) Any() bool {
	return s.SMS || s.QR || s.SSID || s.Geolocation || s.Smart
}

// Methods returns the usable method names in stable order, for audit
// metadata and client display.
func (s Set) Methods() []string {
	out := make([]string, 0, 5)
	if s.SMS {
		out = append(out, "sms")
	}
	if s.QR {
		out = append(out, "qr")
	}
	if s.SSID {
		out = append(out, "ssid")
	}
	if s.Geolocation {
		out = append(out, "geolocation")
	}
	if s.Smart {
		out = append(out, "smart")
	}
	return out
}
