package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"sort"
	"sync"

	"tompei-viewer/annotation"
	"tompei-viewer/constants"
	"tompei-viewer/patient"
	"tompei-viewer/render"
	"tompei-viewer/study"
	"tompei-viewer/utils"

	"go.uber.org/zap"
)

var (
	ErrNoSeries          = errors.New("no series found for patient")
	ErrSeriesUnavailable = errors.New("series metadata is unavailable")
	ErrImageIndex        = errors.New("image index out of range")
	ErrNoPatients        = errors.New(constants.MsgNoPatients)
)

type ArchiveSource interface {
	Ensure(ctx context.Context) (string, error)
}

type SeriesSource interface {
	GetSeries(ctx context.Context, collection string) ([]study.Series, error)
	DownloadSeries(ctx context.Context, uids []string, dir string) error
}

type DICOMSource interface {
	ReadView(path string) (study.View, error)
	ReadImage(path string) (image.Image, error)
}

// Enqueuer accepts patients for background download.
type Enqueuer interface {
	Enqueue(patientID string)
}

type LabelToggle struct {
	Name  string `json:"name"`
	Shown bool   `json:"shown"`
}

type ImageView struct {
	Index          int    `json:"index"`
	PatientID      string `json:"patient_id"`
	DicomPath      string `json:"dicom_path"`
	AnnotationName string `json:"annotation_name"`
	FigureURL      string `json:"figure_url"`
}

// Page is the outcome of one render cycle.
type Page struct {
	BasePath     string        `json:"-"`
	PatientIDs   []string      `json:"patient_ids"`
	PatientCount int           `json:"patient_count"`
	Selected     string        `json:"selected"`
	Index        int           `json:"index"`
	Labels       []LabelToggle `json:"labels"`
	Images       []ImageView   `json:"images"`
	Warnings     []string      `json:"warnings,omitempty"`
	Error        string        `json:"error,omitempty"`
}

func (page *Page) warn(format string, args ...interface{}) {
	page.Warnings = append(page.Warnings, fmt.Sprintf(format, args...))
}

// Catalog is the process-wide view of known patients.
type Catalog struct {
	Index      patient.Index
	PatientIDs []string
	Series     *study.SeriesTable
}

type Orchestrator struct {
	archive    ArchiveSource
	tcia       SeriesSource
	dicoms     DICOMSource
	renderer   *render.Renderer
	figures    *render.FigureCache
	locker     Locker
	prefetcher Enqueuer
	collection string
	imagesDir  string
	basePath   string
	logger     *zap.Logger

	mu      sync.Mutex
	series  *study.SeriesTable
	indexes map[string]patient.Index
}

type OrchestratorConfig struct {
	Collection string
	ImagesDir  string
	BasePath   string
}

func NewOrchestrator(archive ArchiveSource, tcia SeriesSource, dicoms DICOMSource, renderer *render.Renderer,
	figures *render.FigureCache, locker Locker, config OrchestratorConfig, logger *zap.Logger) *Orchestrator {
	if config.BasePath == "" {
		config.BasePath = "/viewer"
	}
	return &Orchestrator{
		archive:    archive,
		tcia:       tcia,
		dicoms:     dicoms,
		renderer:   renderer,
		figures:    figures,
		locker:     locker,
		collection: config.Collection,
		imagesDir:  config.ImagesDir,
		basePath:   config.BasePath,
		logger:     logger,
		indexes:    make(map[string]patient.Index),
	}
}

// SetPrefetcher enables background download of the next patient.
func (o *Orchestrator) SetPrefetcher(prefetcher Enqueuer) {
	o.prefetcher = prefetcher
}

// Catalog ensures the archive, the series table and the patient index. The
// series table is optional: a failure is returned as a warning and retried
// on the next call.
func (o *Orchestrator) Catalog(ctx context.Context) (*Catalog, []string, error) {
	extractPath, err := o.archive.Ensure(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load archive: %w", err)
	}

	warnings := make([]string, 0)
	series, err := o.seriesTable(ctx)
	if err != nil {
		o.logger.Warn("Cannot fetch series metadata", zap.Error(err))
		warnings = append(warnings, fmt.Sprintf("Error fetching series metadata: %s", err))
	}

	index, err := o.index(extractPath)
	if err != nil {
		return nil, warnings, err
	}
	return &Catalog{Index: index, PatientIDs: index.PatientIDs(), Series: series}, warnings, nil
}

func (o *Orchestrator) seriesTable(ctx context.Context) (*study.SeriesTable, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.series != nil {
		return o.series, nil
	}
	rows, err := o.tcia.GetSeries(ctx, o.collection)
	if err != nil {
		return nil, err
	}
	o.series = study.NewSeriesTable(rows)
	return o.series, nil
}

func (o *Orchestrator) index(extractPath string) (patient.Index, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if index, found := o.indexes[extractPath]; found {
		return index, nil
	}
	index, err := patient.BuildIndex(extractPath)
	if err != nil {
		return nil, err
	}
	o.indexes[extractPath] = index
	return index, nil
}

// Render runs one full cycle for state and returns the page with the
// updated state. The input state is not modified.
func (o *Orchestrator) Render(ctx context.Context, in State) (Page, State) {
	state := in.Clone()
	page := Page{
		BasePath:   o.basePath,
		PatientIDs: make([]string, 0),
		Labels:     make([]LabelToggle, 0),
		Images:     make([]ImageView, 0),
	}

	catalog, warnings, err := o.Catalog(ctx)
	page.Warnings = append(page.Warnings, warnings...)
	if err != nil {
		o.logger.Error("Cannot build patient catalog", zap.Error(err))
		page.Error = err.Error()
		return page, state
	}
	if len(catalog.PatientIDs) == 0 {
		page.Error = constants.MsgNoPatients
		return page, state
	}

	state.Clamp(len(catalog.PatientIDs))
	selected := catalog.PatientIDs[state.CurrentIndex]
	page.PatientIDs = catalog.PatientIDs
	page.PatientCount = len(catalog.PatientIDs)
	page.Selected = selected
	page.Index = state.CurrentIndex
	state.EnsureLabels(selected, nil)

	if !state.Downloaded[selected] {
		set, fileWarnings, err := o.loadPatient(ctx, selected, catalog)
		page.Warnings = append(page.Warnings, fileWarnings...)
		if err != nil {
			o.logger.Warn("Error processing patient", zap.String("patient_id", selected), zap.Error(err))
			page.warn("Error processing patient %s: %s", selected, err)
		} else {
			state.PatientImages[selected] = set
			state.Downloaded[selected] = true
		}
	}

	set := state.PatientImages[selected]
	if set.Len() == 0 {
		page.warn("No MLO images found for patient %s", selected)
	} else {
		state.EnsureLabels(selected, o.collectLabels(set, &page))
		for _, label := range state.Labels(selected) {
			page.Labels = append(page.Labels, LabelToggle{Name: label, Shown: state.Toggles[selected][label]})
		}

		visibility := state.Visibility(selected)
		for i := range set.Images {
			version := render.NewFigureKey(set.Images[i], set.Annotations[i], visibility).Digest()[:12]
			page.Images = append(page.Images, ImageView{
				Index:          i,
				PatientID:      selected,
				DicomPath:      set.Images[i],
				AnnotationName: filepath.Base(set.Annotations[i]),
				FigureURL:      fmt.Sprintf("%s/figures/%d?%s=%s", o.basePath, i, constants.ParamVersion, version),
			})
		}
	}

	if o.prefetcher != nil && state.CurrentIndex+1 < len(catalog.PatientIDs) {
		o.prefetcher.Enqueue(catalog.PatientIDs[state.CurrentIndex+1])
	}
	return page, state
}

// loadPatient downloads the series of patientID and keeps the MLO images
// that have an annotation file. Per-file problems come back as warnings.
func (o *Orchestrator) loadPatient(ctx context.Context, patientID string, catalog *Catalog) (ImageSet, []string, error) {
	set := ImageSet{Images: make([]string, 0), Annotations: make([]string, 0)}
	warnings := make([]string, 0)

	dir, err := o.download(ctx, patientID, catalog)
	if err != nil {
		return set, warnings, err
	}

	files, err := utils.WalkFiles(dir, constants.DICOMExt)
	if err != nil {
		return set, warnings, fmt.Errorf("scan %s: %w", dir, err)
	}
	annotations := catalog.Index.Files(patientID)

	for _, path := range files {
		view, err := o.dicoms.ReadView(path)
		if err != nil {
			o.logger.Warn("Error reading DICOM file", zap.String("path", path), zap.Error(err))
			warnings = append(warnings, fmt.Sprintf("Error reading DICOM file %s: %s", filepath.Base(path), err))
			continue
		}
		if !view.IsMLO {
			utils.LogDebug("Skipping non-MLO image %s (%s)", path, view.CodeMeaning)
			continue
		}
		match := patient.MatchAnnotation(annotations, view.Laterality)
		if match == "" {
			continue
		}
		set.Images = append(set.Images, path)
		set.Annotations = append(set.Annotations, match)
	}
	o.logger.Info("Loaded patient", zap.String("patient_id", patientID),
		zap.Int("dicom_files", len(files)), zap.Int("mlo_images", set.Len()))
	return set, warnings, nil
}

// download fetches every series of patientID under the patient lock and
// returns the patient's image directory.
func (o *Orchestrator) download(ctx context.Context, patientID string, catalog *Catalog) (string, error) {
	if catalog.Series == nil {
		return "", ErrSeriesUnavailable
	}
	uids := catalog.Series.SeriesUIDs(patientID)
	if len(uids) == 0 {
		return "", fmt.Errorf("%w %s", ErrNoSeries, patientID)
	}

	release, err := o.locker.Obtain(ctx, patientID)
	if err != nil {
		return "", err
	}
	defer release()

	dir := filepath.Join(o.imagesDir, patientID)
	if err := o.tcia.DownloadSeries(ctx, uids, dir); err != nil {
		return "", err
	}
	return dir, nil
}

// Prefetch downloads the series of patientID without touching any session.
func (o *Orchestrator) Prefetch(ctx context.Context, patientID string) error {
	catalog, _, err := o.Catalog(ctx)
	if err != nil {
		return err
	}
	_, err = o.download(ctx, patientID, catalog)
	return err
}

// collectLabels loads each distinct annotation file of set once and returns
// the distinct labels in lexical order.
func (o *Orchestrator) collectLabels(set ImageSet, page *Page) []string {
	seenFiles := make(map[string]bool)
	seenLabels := make(map[string]bool)
	labels := make([]string, 0)
	for _, path := range set.Annotations {
		if seenFiles[path] {
			continue
		}
		seenFiles[path] = true

		records, err := annotation.Load(path)
		if err != nil {
			page.warn("Error reading annotation file: %s", err)
			continue
		}
		for _, label := range annotation.DistinctLabels(records) {
			if !seenLabels[label.Name] {
				seenLabels[label.Name] = true
				labels = append(labels, label.Name)
			}
		}
	}
	sort.Strings(labels)
	return labels
}

// Figure renders image i of the selected patient with the session's toggles.
func (o *Orchestrator) Figure(ctx context.Context, state State, i int) (*render.Figure, error) {
	patientIDs, err := o.PatientIDs(ctx)
	if err != nil {
		return nil, err
	}
	state.Clamp(len(patientIDs))
	selected := patientIDs[state.CurrentIndex]

	set := state.PatientImages[selected]
	if i < 0 || i >= set.Len() {
		return nil, fmt.Errorf("%w: %d", ErrImageIndex, i)
	}
	dicomPath, annotationPath := set.Images[i], set.Annotations[i]
	visibility := state.Visibility(selected)

	key := render.NewFigureKey(dicomPath, annotationPath, visibility)
	return o.figures.GetOrRender(ctx, key, func() (*render.Figure, error) {
		figure, err := o.renderer.RenderFile(o.dicoms, dicomPath, annotationPath, visibility)
		if err != nil {
			return nil, fmt.Errorf("read DICOM file %s: %w", filepath.Base(dicomPath), err)
		}
		if figure.Warning != "" {
			o.logger.Warn(figure.Warning, zap.String("annotation", annotationPath))
		}
		return figure, nil
	})
}

// PatientIDs returns the sorted known patient ids.
func (o *Orchestrator) PatientIDs(ctx context.Context) ([]string, error) {
	catalog, _, err := o.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	if len(catalog.PatientIDs) == 0 {
		return nil, ErrNoPatients
	}
	return catalog.PatientIDs, nil
}

// PatientAnnotations loads every annotation file of patientID, keyed by
// file name.
func (o *Orchestrator) PatientAnnotations(ctx context.Context, patientID string) (map[string][]annotation.Record, error) {
	catalog, _, err := o.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	files := catalog.Index.Files(patientID)
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPatient, patientID)
	}
	records := make(map[string][]annotation.Record, len(files))
	for _, path := range files {
		loaded, err := annotation.Load(path)
		if err != nil {
			return nil, err
		}
		records[filepath.Base(path)] = loaded
	}
	return records, nil
}
