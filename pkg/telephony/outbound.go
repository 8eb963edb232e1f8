package telephony

// AMDConfig is the answering-machine-detection tuning passed to the
// telephony provider's dial request (spec §6 supplemented features),
// grounded on call_manager.py::initiate_call's
// answering_machine_detection_config literal.
type AMDConfig struct {
	AfterGreetingSilenceMillis int
	BetweenWordsSilenceMillis  int
	GreetingDurationMillis     int
	InitialSilenceMillis       int
	MaximumNumberOfWords       int
	MaximumWordLengthMillis    int
	SilenceThreshold           int
	TotalAnalysisTimeMillis    int
}

// DefaultAMDConfig mirrors call_manager.py::initiate_call's literal
// answering_machine_detection_config values.
func DefaultAMDConfig() AMDConfig {
	return AMDConfig{
		AfterGreetingSilenceMillis: 800,
		BetweenWordsSilenceMillis:  50,
		GreetingDurationMillis:     3500,
		InitialSilenceMillis:       3500,
		MaximumNumberOfWords:       5,
		MaximumWordLengthMillis:    3500,
		SilenceThreshold:           256,
		TotalAnalysisTimeMillis:    5000,
	}
}

// DialOptions is the set of call-placement parameters an OutboundCaller
// needs (spec §6 CLI contract: --to/--from, plus the public media URL and
// AMD tuning).
type DialOptions struct {
	To        string
	From      string
	PublicURL string
	AMD       AMDConfig
}

// OutboundCaller places an outbound call with bidirectional media
// streaming enabled from the start, per call_manager.py::initiate_call.
// Out of core scope (spec §1): this module defines the contract a host
// embedding it must satisfy with a concrete telephony SDK client (e.g. a
// Telnyx or Twilio REST client); it implements no concrete dialer itself.
type OutboundCaller interface {
	Dial(opts DialOptions) (callControlID string, err error)
}
