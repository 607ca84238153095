package uhdrbake

import "fmt"

// Classify probes two unordered JPEG inputs and decides which one is the HDR
// source. The decision is symmetric: swapping a and b swaps the outcome but
// never changes it.
//
// Metadata decides first: if exactly one input carries an embedded gain map
// or an extended dynamic range tag, that input is HDR. Otherwise the peak
// luma estimates are compared; one input must exceed the other by the
// configured margin or ErrAmbiguousOrdering is returned.
func Classify(a, b []byte, opts *ClassifyOptions) (*OrderedInputPair, error) {
	pa, err := Probe(a)
	if err != nil {
		return nil, fmt.Errorf("probe first input: %w", err)
	}
	pb, err := Probe(b)
	if err != nil {
		return nil, fmt.Errorf("probe second input: %w", err)
	}
	return ClassifyProbed(a, pa, b, pb, opts)
}

// ClassifyProbed applies the ordering policy to already-probed inputs.
func ClassifyProbed(a []byte, pa *ProbeResult, b []byte, pb *ProbeResult, opts *ClassifyOptions) (*OrderedInputPair, error) {
	margin := defaultPeakMargin
	if opts != nil && opts.PeakMargin > 1 {
		margin = opts.PeakMargin
	}

	aTagged := pa.HasEmbeddedGainMap || pa.HasExtendedDynamicRangeTag
	bTagged := pb.HasEmbeddedGainMap || pb.HasExtendedDynamicRangeTag
	if aTagged != bTagged {
		if aTagged {
			return &OrderedInputPair{HDR: a, SDR: b}, nil
		}
		return &OrderedInputPair{HDR: b, SDR: a}, nil
	}

	switch {
	case pa.PeakLumaEstimate > pb.PeakLumaEstimate*margin:
		return &OrderedInputPair{HDR: a, SDR: b}, nil
	case pb.PeakLumaEstimate > pa.PeakLumaEstimate*margin:
		return &OrderedInputPair{HDR: b, SDR: a}, nil
	}
	return nil, fmt.Errorf("%w: peak luma %.4f vs %.4f within margin %.2f",
		ErrAmbiguousOrdering, pa.PeakLumaEstimate, pb.PeakLumaEstimate, margin)
}
