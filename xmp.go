package uhdrbake

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	hdrgmNamespace      = "http://ns.adobe.com/hdr-gain-map/1.0/"
	gcameraNamespace    = "http://ns.google.com/photos/1.0/camera/"
	gcontainerNamespace = "http://ns.google.com/photos/1.0/container/"
	gcontainerItemNS    = "http://ns.google.com/photos/1.0/container/item/"
)

var (
	reVersion    = regexp.MustCompile(`hdrgm:Version="([^"]+)"`)
	reGainMapMin = regexp.MustCompile(`hdrgm:GainMapMin="([^"]+)"`)
	reGainMapMax = regexp.MustCompile(`hdrgm:GainMapMax="([^"]+)"`)
	reGamma      = regexp.MustCompile(`hdrgm:Gamma="([^"]+)"`)
	reOffsetSDR  = regexp.MustCompile(`hdrgm:OffsetSDR="([^"]+)"`)
	reOffsetHDR  = regexp.MustCompile(`hdrgm:OffsetHDR="([^"]+)"`)
	reHDRCapMin  = regexp.MustCompile(`hdrgm:HDRCapacityMin="([^"]+)"`)
	reHDRCapMax  = regexp.MustCompile(`hdrgm:HDRCapacityMax="([^"]+)"`)
	reBaseIsHDR  = regexp.MustCompile(`hdrgm:BaseRenditionIsHDR="([^"]+)"`)

	reMotionTimestamp = regexp.MustCompile(`GCamera:MotionPhotoPresentationTimestampUs="([^"]+)"`)
)

// parseGainmapXMP extracts gain map metadata from an hdrgm XMP APP1 payload.
func parseGainmapXMP(app1 []byte) (*GainMapMetadata, error) {
	if len(app1) < len(xmpNamespace)+2 {
		return nil, errors.New("xmp block too small")
	}
	if !strings.HasPrefix(string(app1), xmpNamespace+"\x00") {
		return nil, errors.New("xmp namespace mismatch")
	}
	xml := string(app1[len(xmpNamespace)+1:])

	meta := &GainMapMetadata{Version: jpegrVersion, UseBaseCG: true}
	meta.MinContentBoost[0] = 1
	meta.MaxContentBoost[0] = 1
	meta.Gamma[0] = 1
	meta.OffsetSDR[0] = 1.0 / 64.0
	meta.OffsetHDR[0] = 1.0 / 64.0
	meta.HDRCapacityMin = 1
	meta.HDRCapacityMax = 1

	getStr := func(re *regexp.Regexp) (string, bool) {
		m := re.FindStringSubmatch(xml)
		if len(m) != 2 {
			return "", false
		}
		return m[1], true
	}
	getFloat := func(re *regexp.Regexp) (float32, bool, error) {
		str, ok := getStr(re)
		if !ok {
			return 0, false, nil
		}
		v, err := strconv.ParseFloat(str, 32)
		if err != nil {
			return 0, true, err
		}
		return float32(v), true, nil
	}

	if v, ok := getStr(reVersion); ok {
		meta.Version = v
	} else {
		return nil, errors.New("xmp missing version")
	}

	if v, ok, err := getFloat(reGainMapMax); err != nil {
		return nil, err
	} else if ok {
		meta.MaxContentBoost[0] = exp2f(v)
	} else {
		return nil, errors.New("xmp missing GainMapMax")
	}

	if v, ok, err := getFloat(reHDRCapMax); err != nil {
		return nil, err
	} else if ok {
		meta.HDRCapacityMax = exp2f(v)
	} else {
		return nil, errors.New("xmp missing HDRCapacityMax")
	}

	if v, ok, err := getFloat(reGainMapMin); err != nil {
		return nil, err
	} else if ok {
		meta.MinContentBoost[0] = exp2f(v)
	}
	if v, ok, err := getFloat(reGamma); err != nil {
		return nil, err
	} else if ok {
		meta.Gamma[0] = v
	}
	if v, ok, err := getFloat(reOffsetSDR); err != nil {
		return nil, err
	} else if ok {
		meta.OffsetSDR[0] = v
	}
	if v, ok, err := getFloat(reOffsetHDR); err != nil {
		return nil, err
	} else if ok {
		meta.OffsetHDR[0] = v
	}
	if v, ok, err := getFloat(reHDRCapMin); err != nil {
		return nil, err
	} else if ok {
		meta.HDRCapacityMin = exp2f(v)
	}
	if v, ok := getStr(reBaseIsHDR); ok && v == "True" {
		return nil, errors.New("base rendition HDR not supported")
	}

	for i := 1; i < 3; i++ {
		meta.MinContentBoost[i] = meta.MinContentBoost[0]
		meta.MaxContentBoost[i] = meta.MaxContentBoost[0]
		meta.Gamma[i] = meta.Gamma[0]
		meta.OffsetSDR[i] = meta.OffsetSDR[0]
		meta.OffsetHDR[i] = meta.OffsetHDR[0]
	}
	return meta, nil
}

func fmtF(v float32) string {
	return strconv.FormatFloat(float64(v), 'f', 6, 32)
}

// buildGainmapXMP renders the hdrgm XMP for the gain map image as an APP1
// payload (namespace prefix included).
func buildGainmapXMP(meta *GainMapMetadata) []byte {
	xml := `<x:xmpmeta xmlns:x="adobe:ns:meta/" x:xmptk="uhdrbake">` +
		`<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">` +
		`<rdf:Description rdf:about=""` +
		` xmlns:hdrgm="` + hdrgmNamespace + `"` +
		` hdrgm:Version="` + meta.Version + `"` +
		` hdrgm:GainMapMin="` + fmtF(log2f(meta.MinContentBoost[0])) + `"` +
		` hdrgm:GainMapMax="` + fmtF(log2f(meta.MaxContentBoost[0])) + `"` +
		` hdrgm:Gamma="` + fmtF(meta.Gamma[0]) + `"` +
		` hdrgm:OffsetSDR="` + fmtF(meta.OffsetSDR[0]) + `"` +
		` hdrgm:OffsetHDR="` + fmtF(meta.OffsetHDR[0]) + `"` +
		` hdrgm:HDRCapacityMin="` + fmtF(log2f(meta.HDRCapacityMin)) + `"` +
		` hdrgm:HDRCapacityMax="` + fmtF(log2f(meta.HDRCapacityMax)) + `"` +
		` hdrgm:BaseRenditionIsHDR="False"/>` +
		`</rdf:RDF></x:xmpmeta>`
	return wrapXMPPayload(xml)
}

// buildPrimaryXMP renders the GContainer directory XMP for the primary image,
// pointing at a gain map item of secondaryLen bytes.
func buildPrimaryXMP(secondaryLen int) []byte {
	xml := `<x:xmpmeta xmlns:x="adobe:ns:meta/" x:xmptk="uhdrbake">` +
		`<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">` +
		`<rdf:Description rdf:about=""` +
		` xmlns:Container="` + gcontainerNamespace + `"` +
		` xmlns:Item="` + gcontainerItemNS + `"` +
		` xmlns:hdrgm="` + hdrgmNamespace + `"` +
		` hdrgm:Version="` + jpegrVersion + `">` +
		`<Container:Directory><rdf:Seq>` +
		`<rdf:li rdf:parseType="Resource">` +
		`<Container:Item Item:Semantic="Primary" Item:Mime="image/jpeg"/>` +
		`</rdf:li>` +
		`<rdf:li rdf:parseType="Resource">` +
		`<Container:Item Item:Semantic="GainMap" Item:Mime="image/jpeg" Item:Length="` + strconv.Itoa(secondaryLen) + `"/>` +
		`</rdf:li>` +
		`</rdf:Seq></Container:Directory>` +
		`</rdf:Description></rdf:RDF></x:xmpmeta>`
	return wrapXMPPayload(xml)
}

// buildMotionXMP renders the Motion Photo XMP: GCamera flags plus a container
// directory locating the appended video by length.
func buildMotionXMP(jpegLen, videoLen int, timestampMicros int64) []byte {
	xml := `<x:xmpmeta xmlns:x="adobe:ns:meta/" x:xmptk="uhdrbake">` +
		`<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">` +
		`<rdf:Description rdf:about=""` +
		` xmlns:GCamera="` + gcameraNamespace + `"` +
		` xmlns:Container="` + gcontainerNamespace + `"` +
		` xmlns:Item="` + gcontainerItemNS + `"` +
		` GCamera:MotionPhoto="1"` +
		` GCamera:MotionPhotoVersion="1"` +
		` GCamera:MotionPhotoPresentationTimestampUs="` + strconv.FormatInt(timestampMicros, 10) + `">` +
		`<Container:Directory><rdf:Seq>` +
		`<rdf:li rdf:parseType="Resource">` +
		`<Container:Item Item:Mime="image/jpeg" Item:Semantic="Primary" Item:Length="` + strconv.Itoa(jpegLen) + `" Item:Padding="0"/>` +
		`</rdf:li>` +
		`<rdf:li rdf:parseType="Resource">` +
		`<Container:Item Item:Mime="video/mp4" Item:Semantic="MotionPhoto" Item:Length="` + strconv.Itoa(videoLen) + `" Item:Padding="0"/>` +
		`</rdf:li>` +
		`</rdf:Seq></Container:Directory>` +
		`</rdf:Description></rdf:RDF></x:xmpmeta>`
	return wrapXMPPayload(xml)
}

func wrapXMPPayload(xml string) []byte {
	payload := make([]byte, 0, len(xmpNamespace)+1+len(xml))
	payload = append(payload, []byte(xmpNamespace)...)
	payload = append(payload, 0)
	payload = append(payload, []byte(xml)...)
	return payload
}

// parseMotionTimestamp reads the presentation timestamp back out of a Motion
// Photo XMP payload.
func parseMotionTimestamp(app1 []byte) (int64, error) {
	m := reMotionTimestamp.FindSubmatch(app1)
	if len(m) != 2 {
		return 0, errors.New("motion timestamp missing")
	}
	v, err := strconv.ParseInt(string(m[1]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("motion timestamp invalid: %w", err)
	}
	return v, nil
}

// hasHdrgmXMP reports whether an XMP payload carries gain map markup.
func hasHdrgmXMP(app1 []byte) bool {
	return strings.Contains(string(app1), "hdrgm:")
}
