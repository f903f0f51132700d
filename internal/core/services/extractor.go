package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/custodia-labs/algosync/internal/core/domain"
	"github.com/custodia-labs/algosync/internal/core/ports/driven"
	"github.com/custodia-labs/algosync/internal/logger"
)

// SubsiteField is the record field copied to objectSubsiteID by the
// virtual-page exporter.
const SubsiteField = "SubsiteID"

// AttributeExtractor projects records into index documents.
// It holds no mutable state and is safe for concurrent use.
type AttributeExtractor struct {
	classes  *domain.ClassRegistry
	records  driven.RecordStore
	crawler  driven.Crawler
	settings domain.IndexerSettings
	clock    func() time.Time
}

// NewAttributeExtractor creates an extractor.
// The records store resolves relations; crawler is optional.
func NewAttributeExtractor(
	classes *domain.ClassRegistry,
	records driven.RecordStore,
	crawler driven.Crawler,
	settings domain.IndexerSettings,
) *AttributeExtractor {
	if settings.MaxFieldSizeBytes <= 0 {
		settings.MaxFieldSizeBytes = domain.DefaultMaxFieldSizeBytes
	}
	if settings.MaxChunks <= 0 {
		settings.MaxChunks = domain.DefaultMaxChunks
	}
	if settings.OversizePolicy == "" {
		settings.OversizePolicy = domain.OversizeChunk
	}
	return &AttributeExtractor{
		classes:  classes,
		records:  records,
		crawler:  crawler,
		settings: settings,
		clock:    time.Now,
	}
}

// Extract builds the document for a record. The record is never modified.
// Fields that cannot be resolved are left out and reported in Dropped.
func (e *AttributeExtractor) Extract(ctx context.Context, rec *domain.Record) (*domain.Extraction, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: nil record", domain.ErrInvalidInput)
	}
	if rec.State.SearchUUID == "" {
		return nil, fmt.Errorf("%w: record %d has no search uuid", domain.ErrExtraction, rec.ID)
	}

	out := &domain.Extraction{Document: e.seed(rec)}
	spec, _ := e.classes.Spec(rec.ClassName)

	e.addContent(ctx, rec, spec, out.Document)

	if exporter := e.exporterFor(spec); exporter != nil {
		doc, err := exporter.ExportDocument(ctx, rec, out.Document)
		if err != nil {
			return nil, fmt.Errorf("%w: custom export of %s %d: %w", domain.ErrExtraction, rec.ClassName, rec.ID, err)
		}
		if doc == nil {
			return nil, fmt.Errorf("%w: custom export of %s %d returned no document", domain.ErrExtraction, rec.ClassName, rec.ID)
		}
		out.Document = doc
	} else {
		out.Dropped = e.addFields(ctx, rec, spec, out.Document)
	}

	if updater, ok := spec.Behaviour.(domain.AttributeUpdater); ok {
		updater.UpdateAttributes(ctx, rec, out.Document)
	}

	for _, d := range out.Dropped {
		logger.Debug("extract %s %d: dropped %v", rec.ClassName, rec.ID, d)
	}
	return out, nil
}

// seed writes the canonical keys.
func (e *AttributeExtractor) seed(rec *domain.Record) *domain.Document {
	doc := domain.NewDocument()
	doc.Set(domain.KeyObjectID, rec.State.SearchUUID)
	doc.Set(domain.KeyLocalID, rec.ID)
	doc.Set(domain.KeyIndexedTimestamp, e.clock().UTC().Format(time.RFC3339))
	doc.Set(domain.KeyTitle, rec.Title)
	doc.Set(domain.KeyClassName, rec.ClassName)
	doc.Set(domain.KeyClassNameHierarchy, e.classes.Ancestry(rec.ClassName))
	doc.Set(domain.KeyLastEdited, rec.LastEdited.Unix())
	doc.Set(domain.KeyCreated, rec.Created.Unix())
	if link := domain.CanonicalLink(rec.Link); link != "" {
		doc.Set(domain.KeyLink, link)
	}
	return doc
}

// addContent writes the crawled main content of renderable records.
func (e *AttributeExtractor) addContent(ctx context.Context, rec *domain.Record, spec domain.ClassSpec, doc *domain.Document) {
	if !e.settings.IncludePageContent || !spec.Renderable || e.crawler == nil {
		return
	}
	if text := e.crawler.MainContent(ctx, rec); text != "" {
		e.writeText(doc, domain.KeyForTemplate, text)
	}
}

func (e *AttributeExtractor) exporterFor(spec domain.ClassSpec) domain.CustomExporter {
	if exporter, ok := spec.Behaviour.(domain.CustomExporter); ok {
		return exporter
	}
	if spec.CopyContentFrom != "" {
		return &virtualPageExporter{extractor: e, relation: spec.CopyContentFrom}
	}
	return nil
}

// addFields copies the configured index fields of rec into doc.
func (e *AttributeExtractor) addFields(
	ctx context.Context,
	rec *domain.Record,
	spec domain.ClassSpec,
	doc *domain.Document,
) []domain.FieldError {
	var dropped []domain.FieldError
	for _, name := range spec.IndexFields {
		if slices.Contains(e.settings.BlacklistedAttributes, name) {
			continue
		}
		if err := e.addField(ctx, rec, spec, name, doc); err != nil {
			dropped = append(dropped, domain.FieldError{Field: name, Err: err})
		}
	}
	return dropped
}

func (e *AttributeExtractor) addField(
	ctx context.Context,
	rec *domain.Record,
	spec domain.ClassSpec,
	name string,
	doc *domain.Document,
) error {
	if rel, ok := rec.Relation(name); ok {
		return e.addRelation(ctx, rec, spec, name, rel, doc)
	}
	fv, ok := rec.Field(name)
	if !ok {
		return fmt.Errorf("%w: no field or relation named %s on %s", domain.ErrExtraction, name, rec.ClassName)
	}
	if fv.IsEmpty() {
		return nil
	}
	return e.addValue(name, fv, doc)
}

// addValue dispatches on the field kind.
func (e *AttributeExtractor) addValue(name string, fv domain.FieldValue, doc *domain.Document) error {
	switch fv.Kind {
	case domain.FieldString, domain.FieldText:
		s, ok := fv.Value.(string)
		if !ok {
			return typeMismatch(fv)
		}
		e.writeText(doc, name, s)
	case domain.FieldHTML:
		s, ok := fv.Value.(string)
		if !ok {
			return typeMismatch(fv)
		}
		if text := plainText(s); text != "" {
			e.writeText(doc, name, text)
		}
	case domain.FieldStringList:
		list, ok := fv.Value.([]string)
		if !ok {
			return typeMismatch(fv)
		}
		doc.Set(name, list)
	case domain.FieldBool:
		b, ok := fv.Value.(bool)
		if !ok {
			return typeMismatch(fv)
		}
		doc.Set(name, b)
	case domain.FieldDate, domain.FieldDatetime:
		t, ok := fv.Value.(time.Time)
		if !ok {
			return typeMismatch(fv)
		}
		doc.Set(name, t.Unix())
	case domain.FieldForeignKey:
		id, ok := fv.Value.(int64)
		if !ok {
			return typeMismatch(fv)
		}
		doc.Set(name, id)
	default:
		doc.Set(name, fv.String())
	}
	return nil
}

func typeMismatch(fv domain.FieldValue) error {
	return fmt.Errorf("%w: %s field holds %T", domain.ErrExtraction, fv.Kind, fv.Value)
}

// addRelation writes a sub-document, or a list of them, for a relation.
// Relations without existing targets are omitted.
func (e *AttributeExtractor) addRelation(
	ctx context.Context,
	rec *domain.Record,
	spec domain.ClassSpec,
	name string,
	rel domain.Relation,
	doc *domain.Document,
) error {
	if len(rel.IDs) == 0 {
		return nil
	}
	if e.records == nil {
		return fmt.Errorf("%w: no record store to resolve %s", domain.ErrExtraction, name)
	}
	updater, _ := spec.Behaviour.(domain.RelationshipAttributeUpdater)

	var subs []*domain.Document
	for _, id := range rel.IDs {
		related, err := e.records.Get(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: resolve %s %d: %w", domain.ErrExtraction, name, id, err)
		}
		sub := domain.NewDocument()
		sub.Set(domain.KeyObjectID, related.ID)
		sub.Set(domain.KeyTitle, related.Title)
		if updater != nil {
			updater.UpdateRelationshipAttributes(rec, related, sub)
		}
		subs = append(subs, sub)
		if !rel.IsCollection() {
			break
		}
	}

	switch {
	case len(subs) == 0:
	case rel.IsCollection():
		doc.Set(name, subs)
	default:
		doc.Set(name, subs[0])
	}
	return nil
}

// writeText applies the oversize policy. Text within the threshold is
// written under key; longer text is either split into key_Block<N>
// attributes or cut to the threshold.
func (e *AttributeExtractor) writeText(doc *domain.Document, key, text string) {
	limit := e.settings.MaxFieldSizeBytes
	if len(text) <= limit {
		doc.Set(key, text)
		return
	}
	if e.settings.OversizePolicy == domain.OversizeTruncate {
		doc.Set(key, text[:cutPoint(text, limit)])
		return
	}
	blocks := chunkText(text, limit, e.settings.MaxChunks)
	for i, block := range blocks {
		doc.Set(key+"_Block"+strconv.Itoa(i), block)
	}
	if consumed := totalLen(blocks); consumed < len(text) {
		logger.Warn("%s: dropped %d bytes after %d blocks", key, len(text)-consumed, len(blocks))
	}
}

// chunkText splits text into at most maxChunks pieces of at most limit
// bytes, never splitting a UTF-8 sequence.
func chunkText(text string, limit, maxChunks int) []string {
	var blocks []string
	for len(text) > 0 && len(blocks) < maxChunks {
		cut := cutPoint(text, limit)
		blocks = append(blocks, text[:cut])
		text = text[cut:]
	}
	return blocks
}

// cutPoint returns the largest rune boundary not beyond limit.
func cutPoint(text string, limit int) int {
	if len(text) <= limit {
		return len(text)
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	if cut == 0 {
		return limit
	}
	return cut
}

// removeText deletes key and any key_Block<N> attributes.
func removeText(doc *domain.Document, key string) {
	for _, k := range doc.Keys() {
		if k == key || strings.HasPrefix(k, key+"_Block") {
			doc.Delete(k)
		}
	}
}

func totalLen(blocks []string) int {
	n := 0
	for _, b := range blocks {
		n += len(b)
	}
	return n
}

// virtualPageExporter builds a record's document from the content of the
// record it points to, keeping the pointing record's identity.
type virtualPageExporter struct {
	extractor *AttributeExtractor
	relation  string
}

// ExportDocument implements domain.CustomExporter.
func (v *virtualPageExporter) ExportDocument(
	ctx context.Context,
	rec *domain.Record,
	seed *domain.Document,
) (*domain.Document, error) {
	doc := seed.Clone()
	if fv, ok := rec.Field(SubsiteField); ok && !fv.IsEmpty() {
		doc.Set(domain.KeySubsiteID, fv.Value)
	}

	rel, ok := rec.Relation(v.relation)
	if !ok || len(rel.IDs) == 0 || v.extractor.records == nil {
		return doc, nil
	}
	target, err := v.extractor.records.Get(ctx, rel.IDs[0])
	if errors.Is(err, domain.ErrNotFound) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s target: %w", v.relation, err)
	}

	targetSpec, _ := v.extractor.classes.Spec(target.ClassName)
	removeText(doc, domain.KeyForTemplate)
	v.extractor.addContent(ctx, target, targetSpec, doc)
	for _, d := range v.extractor.addFields(ctx, target, targetSpec, doc) {
		logger.Debug("virtual %s %d: target field dropped: %v", rec.ClassName, rec.ID, d)
	}
	return doc, nil
}
