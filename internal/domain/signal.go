// Package domain defines the core interfaces and types for Kestrel.
package domain

// SignalType is the category of evidence being analyzed.
type SignalType string

const (
	SignalURL         SignalType = "url"
	SignalSMS         SignalType = "sms"
	SignalUPI         SignalType = "upi"
	SignalTransaction SignalType = "transaction"
	SignalQR          SignalType = "qr_code"
)

// Platform identifies the client consuming the decision.
type Platform string

const (
	PlatformChrome  Platform = "chrome"
	PlatformAndroid Platform = "android"
	PlatformWeb     Platform = "web"
	PlatformUnknown Platform = "unknown"
)

// UPI payment-intent types. Collect requests pull money from the user
// rather than sending it, which makes them inherently higher-risk.
const (
	IntentPay     = "pay"
	IntentCollect = "collect"
)

// DomainHints carries pre-extracted domain registration facts.
// Kestrel performs no network fetches itself; age, SSL and HTML
// observations arrive with the request.
type DomainHints struct {
	CreationHint string `json:"creationHint,omitempty"` // free text, e.g. "3 days ago"
	SSLValid     *bool  `json:"sslValid,omitempty"`
	SSLIssuer    string `json:"sslIssuer,omitempty"`
}

// HTMLHints carries pre-extracted page content observations.
type HTMLHints struct {
	HasPaymentForms    bool     `json:"hasPaymentForms,omitempty"`
	HasPasswordFields  bool     `json:"hasPasswordFields,omitempty"`
	HasOTPFields       bool     `json:"hasOtpFields,omitempty"`
	ExternalScripts    int      `json:"externalScripts,omitempty"`
	SuspiciousPatterns []string `json:"suspiciousPatterns,omitempty"`
}

// RedirectHints describes an observed redirect chain.
type RedirectHints struct {
	Count      int      `json:"count,omitempty"`
	Suspicious bool     `json:"suspicious,omitempty"`
	Domains    []string `json:"domains,omitempty"`
}

// DeviceHints carries device-security observations from the mobile client.
type DeviceHints struct {
	NewDevice          bool     `json:"newDevice,omitempty"`
	SIMChangedRecently bool     `json:"simChangedRecently,omitempty"`
	LastSIMChange      string   `json:"lastSimChange,omitempty"`
	ScreenSharingApps  []string `json:"screenSharingApps,omitempty"`
}

// BehaviorHints carries per-user transaction-history facts. They are
// pre-computed (payee service or caller); the behavioral analyzer does
// no I/O of its own.
type BehaviorHints struct {
	NewPayee      bool    `json:"newPayee,omitempty"`
	UnusualAmount bool    `json:"unusualAmount,omitempty"`
	UnusualTime   bool    `json:"unusualTime,omitempty"`
	Velocity      int     `json:"velocity,omitempty"` // transactions in the last hour
	TypicalAmount float64 `json:"typicalAmount,omitempty"`
}

// UPIIntent is a parsed UPI payment intent.
type UPIIntent struct {
	IntentType   string  `json:"intentType,omitempty"` // "pay" or "collect"
	Amount       float64 `json:"amount,omitempty"`
	PayeeAddress string  `json:"payeeAddress,omitempty"`
	Note         string  `json:"note,omitempty"`
	Raw          string  `json:"raw,omitempty"`
}

// URLEvidence is the evidence bundle for a URL signal.
type URLEvidence struct {
	URL       string         `json:"url"`
	Domain    *DomainHints   `json:"domainDetails,omitempty"`
	HTML      *HTMLHints     `json:"htmlContent,omitempty"`
	Redirects *RedirectHints `json:"redirectChain,omitempty"`
}

// SMSEvidence is the evidence bundle for an SMS signal.
type SMSEvidence struct {
	Message string       `json:"message"`
	Sender  string       `json:"sender,omitempty"`
	Device  *DeviceHints `json:"deviceInfo,omitempty"`
	Intent  *UPIIntent   `json:"upiIntent,omitempty"`
}

// TransactionEvidence is the evidence bundle for a UPI transaction signal.
type TransactionEvidence struct {
	Amount        float64        `json:"amount"`
	RecipientUPI  string         `json:"recipientUpi"`
	RecipientName string         `json:"recipientName,omitempty"`
	Note          string         `json:"note,omitempty"`
	IntentType    string         `json:"intentType,omitempty"`
	Behavior      *BehaviorHints `json:"behavior,omitempty"`
	Device        *DeviceHints   `json:"deviceInfo,omitempty"`
}

// QREvidence is the evidence bundle for a scanned QR payload.
type QREvidence struct {
	Data   string       `json:"data"`
	Device *DeviceHints `json:"deviceInfo,omitempty"`
}

// AnalysisRequest is a tagged union over the evidence types. Exactly one
// of the evidence pointers matching Signal must be set.
type AnalysisRequest struct {
	Signal   SignalType `json:"signal"`
	Platform Platform   `json:"platform"`
	UserID   string     `json:"userId"`

	URL         *URLEvidence         `json:"url,omitempty"`
	SMS         *SMSEvidence         `json:"sms,omitempty"`
	Transaction *TransactionEvidence `json:"transaction,omitempty"`
	QR          *QREvidence          `json:"qr,omitempty"`
}

// Entity returns the identifier being scored and its classification.
func (r *AnalysisRequest) Entity() (string, EntityType) {
	switch r.Signal {
	case SignalURL:
		if r.URL != nil {
			return r.URL.URL, EntityURLs
		}
	case SignalSMS:
		if r.SMS != nil {
			return r.SMS.Sender, EntitySenders
		}
	case SignalUPI, SignalTransaction:
		if r.Transaction != nil {
			return r.Transaction.RecipientUPI, EntityUPIIDs
		}
	case SignalQR:
		if r.QR != nil {
			return r.QR.Data, EntityURLs
		}
	}
	return "", ""
}

// IntentType returns the UPI intent kind carried by the request, if any.
func (r *AnalysisRequest) IntentType() string {
	switch {
	case r.Transaction != nil && r.Transaction.IntentType != "":
		return r.Transaction.IntentType
	case r.SMS != nil && r.SMS.Intent != nil:
		return r.SMS.Intent.IntentType
	}
	return ""
}

// Device returns the device-security hints carried by the request, if any.
func (r *AnalysisRequest) Device() *DeviceHints {
	switch {
	case r.SMS != nil && r.SMS.Device != nil:
		return r.SMS.Device
	case r.Transaction != nil && r.Transaction.Device != nil:
		return r.Transaction.Device
	case r.QR != nil && r.QR.Device != nil:
		return r.QR.Device
	}
	return nil
}
