package normalization

// DetectSampleSize is how many leading JSON records are offered to detectors
const DetectSampleSize = 5

var jsonDetectors = []RecordDetector{
	Windows{},
	AAD{},
	M365Defender{},
	IdentityProvider{},
	CloudMailbox{},
	EndpointEDR{},
	WebProxy{},
}

var csvDetectors = []HeaderDetector{
	PhishingFeatures{},
	PhishingURL{},
	EmailGateway{},
	Attack{},
}

// DetectJSON picks the adapter for a JSON file from its first records.
// Records are tried in order and each against every detector in priority
// order; the first hit wins. Unrecognized input gets the generic adapter.
func DetectJSON(records []Record) EventNormalizer {
	sample := records[:min(len(records), DetectSampleSize)]
	for _, rec := range sample {
		for _, d := range jsonDetectors {
			if d.Detect(rec) {
				return d.(EventNormalizer)
			}
		}
	}
	return NewGenericJSON()
}

// DetectCSV picks the adapter for a CSV file from its header row. The
// result implements either EventNormalizer or IOCNormalizer.
func DetectCSV(headers []string) Adapter {
	for _, d := range csvDetectors {
		if d.DetectHeaders(headers) {
			return d
		}
	}
	return NewGenericCSV(headers)
}
