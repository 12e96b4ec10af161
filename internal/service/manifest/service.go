package service

import (
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"time"

	"github.com/beevik/etree"
	"github.com/zencoder/go-dash/v3/mpd"

	"github.com/GintGld/livedash/internal/lib/logger/sl"
	"github.com/GintGld/livedash/internal/models"
	"github.com/GintGld/livedash/internal/service"
)

const (
	dashNamespace = "urn:mpeg:dash:schema:mpd:2011"
	utcTimingHTTP = "urn:mpeg:dash:utc:http-iso:2014"
)

// Elements rebuilt from scratch, never copied from source.
var addressingElements = map[string]bool{
	"Representation":  true,
	"SegmentTemplate": true,
	"SegmentList":     true,
	"SegmentBase":     true,
	"BaseURL":         true,
}

// Forced AdaptationSet attributes. Segment boundaries
// must be aligned across representations for switching
// in a synthesized live window.
var adaptationSetAttrs = [][2]string{
	{"startWithSAP", "1"},
	{"subsegmentAlignment", "true"},
	{"segmentAlignment", "true"},
	{"subsegmentStartsWithSAP", "1"},
	{"bitstreamSwitching", "true"},
}

type Manifest struct {
	log *slog.Logger
	cfg models.StreamConfig
}

// New returns new Manifest rewriter.
func New(
	log *slog.Logger,
	cfg models.StreamConfig,
) *Manifest {
	return &Manifest{
		log: log,
		cfg: cfg,
	}
}

// Source is a parsed static manifest
// with checked structure.
type Source struct {
	root *etree.Element
}

// Parse parses static manifest and checks
// that it has exactly one Period and every
// Representation has exactly one SegmentTemplate.
func (m *Manifest) Parse(data []byte) (*Source, error) {
	const op = "Manifest.Parse"

	log := m.log.With(
		slog.String("op", op),
	)

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		log.Warn("failed to parse manifest xml", sl.Err(err))
		return nil, fmt.Errorf("%s: %w: %w", op, service.ErrManifestParse, err)
	}

	root := doc.Root()
	if root == nil || root.Tag != "MPD" {
		return nil, fmt.Errorf("%s: %w: root element is not MPD", op, service.ErrManifestParse)
	}

	periods := root.SelectElements("Period")
	if len(periods) != 1 {
		return nil, fmt.Errorf("%s: %w: expected one Period, got %d", op, service.ErrManifestParse, len(periods))
	}

	for i, as := range periods[0].SelectElements("AdaptationSet") {
		reprs := as.SelectElements("Representation")
		if len(reprs) == 0 {
			return nil, fmt.Errorf("%s: %w: AdaptationSet %d has no Representation", op, service.ErrManifestParse, i)
		}
		for j, repr := range reprs {
			if _, err := segmentTemplate(repr); err != nil {
				return nil, fmt.Errorf("%s: %w: AdaptationSet %d Representation %d: %w", op, service.ErrManifestParse, i, j, err)
			}
		}
	}

	return &Source{root: root}, nil
}

// Render builds dynamic manifest for the stream
// from parsed source.
func (m *Manifest) Render(src *Source, name string, startTime, now time.Time) ([]byte, error) {
	const op = "Manifest.Render"

	log := m.log.With(
		slog.String("op", op),
		slog.String("stream", name),
	)

	if src == nil || src.root == nil {
		return nil, fmt.Errorf("%s: %w: empty source", op, service.ErrManifestParse)
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	man := doc.CreateElement("MPD")
	copyAttrs(man, src.root)
	if man.SelectAttr("xmlns") == nil {
		man.CreateAttr("xmlns", dashNamespace)
	}
	man.RemoveAttr("mediaPresentationDuration")
	man.CreateAttr("profiles", string(mpd.DASH_PROFILE_LIVE))
	man.CreateAttr("type", "dynamic")
	man.CreateAttr("availabilityStartTime", startTime.UTC().Format(models.TimeFormat))
	man.CreateAttr("publishTime", now.UTC().Format(models.TimeFormat))
	man.CreateAttr("minimumUpdatePeriod", mpdDuration(m.cfg.MinimumUpdatePeriod))
	man.CreateAttr("minBufferTime", mpdDuration(m.cfg.MinBufferTime))
	man.CreateAttr("timeShiftBufferDepth", mpdDuration(m.cfg.TimeShiftBufferDepth))
	man.CreateAttr("maxSegmentDuration", mpdDuration(m.cfg.MaxSegmentDuration))

	srcPeriod := src.root.SelectElement("Period")
	period := man.CreateElement("Period")
	copyAttrs(period, srcPeriod)

	for _, srcAS := range srcPeriod.SelectElements("AdaptationSet") {
		as := period.CreateElement("AdaptationSet")
		copyAttrs(as, srcAS)
		for _, kv := range adaptationSetAttrs {
			as.CreateAttr(kv[0], kv[1])
		}
		copyDescriptors(as, srcAS)

		for _, srcRepr := range srcAS.SelectElements("Representation") {
			repr := as.CreateElement("Representation")
			copyAttrs(repr, srcRepr)
			copyDescriptors(repr, srcRepr)

			tmpl, err := segmentTemplate(srcRepr)
			if err != nil {
				return nil, fmt.Errorf("%s: %w: %w", op, service.ErrManifestParse, err)
			}

			st := repr.CreateElement("SegmentTemplate")
			st.CreateAttr("timescale", strconv.FormatInt(m.cfg.Timescale, 10))
			st.CreateAttr("duration", strconv.FormatInt(m.cfg.SegmentLength(), 10))
			st.CreateAttr("startNumber", "0")
			st.CreateAttr("initialization", tmpl.SelectAttrValue("initialization", ""))
			st.CreateAttr("media", name+"-$Number$"+path.Ext(tmpl.SelectAttrValue("media", "")))
		}
	}

	if m.cfg.UTCTimingURL != "" {
		timing := man.CreateElement("UTCTiming")
		timing.CreateAttr("schemeIdUri", utcTimingHTTP)
		timing.CreateAttr("value", m.cfg.UTCTimingURL)
	}

	doc.Indent(2)

	b, err := doc.WriteToBytes()
	if err != nil {
		log.Error("failed to serialize manifest", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return b, nil
}

// Rewrite converts static manifest to dynamic one.
func (m *Manifest) Rewrite(data []byte, name string, startTime, now time.Time) ([]byte, error) {
	const op = "Manifest.Rewrite"

	src, err := m.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	b, err := m.Render(src, name, startTime, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return b, nil
}

// segmentTemplate returns the only SegmentTemplate of representation.
func segmentTemplate(repr *etree.Element) (*etree.Element, error) {
	tmpls := repr.SelectElements("SegmentTemplate")
	if len(tmpls) != 1 {
		return nil, fmt.Errorf("expected one SegmentTemplate, got %d", len(tmpls))
	}
	tmpl := tmpls[0]

	if tmpl.SelectAttrValue("initialization", "") == "" {
		return nil, fmt.Errorf("SegmentTemplate has no initialization")
	}
	media := tmpl.SelectAttrValue("media", "")
	if media == "" {
		return nil, fmt.Errorf("SegmentTemplate has no media")
	}
	if path.Ext(media) == "" {
		return nil, fmt.Errorf("SegmentTemplate media %q has no extension", media)
	}

	return tmpl, nil
}

func mpdDuration(d time.Duration) string {
	v := mpd.Duration(d)
	return v.String()
}

func copyAttrs(dst, src *etree.Element) {
	for _, a := range src.Attr {
		dst.CreateAttr(a.FullKey(), a.Value)
	}
}

// copyDescriptors copies child elements except
// segment addressing ones.
func copyDescriptors(dst, src *etree.Element) {
	for _, child := range src.ChildElements() {
		if addressingElements[child.Tag] {
			continue
		}
		dst.AddChild(child.Copy())
	}
}
