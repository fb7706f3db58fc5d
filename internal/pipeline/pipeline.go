package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"milprep/internal/cohort"
	"milprep/internal/config"
	"milprep/internal/features"
	"milprep/internal/loader"
	"milprep/internal/logging"
	"milprep/internal/split"
	"milprep/internal/weights"
)

// ErrEmptyCorpus indicates reconciliation retained no patient.
var ErrEmptyCorpus = errors.New("no patient has both ground truth and feature archives")

// Stage names attached to log records.
const (
	StageLoad      = "load"
	StageReconcile = "reconcile"
	StageSplit     = "split"
	StageAssemble  = "assemble"
	StageGating    = "gating"
)

// Plan is a fully validated training preparation. Nothing in it has been
// trained on; loaders read archives lazily.
type Plan struct {
	RunID       string
	Corpus      cohort.Corpus
	Diagnostics cohort.Diagnostics
	Train       []cohort.PatientID
	Valid       []cohort.PatientID
	// Folds holds every cross-validation fold when enabled; Train and Valid
	// are then the first fold.
	Folds       []split.Fold
	Categories  []string
	Counts      []int
	Weights     []float64
	DimFeatures int
	TrainLoader *loader.Loader
	ValidLoader *loader.Loader
}

// Deployment is an evaluation pass over a cohort with a fixed category order.
type Deployment struct {
	RunID       string
	Corpus      cohort.Corpus
	Diagnostics cohort.Diagnostics
	Categories  []string
	Loader      *loader.Loader
}

// Sources holds the reconciled corpus of one configuration.
type Sources struct {
	Corpus      cohort.Corpus
	Diagnostics cohort.Diagnostics
}

// LoadCorpus reads both tables and reconciles them with the feature directory.
func LoadCorpus(ctx context.Context, cfg *config.Config, dropMissing bool, logger *slog.Logger) (Sources, error) {
	if err := cfg.ValidateSources(); err != nil {
		return Sources{}, err
	}
	loadLogger := logging.WithContext(logging.WithStage(ctx, StageLoad), logging.NewComponentLogger(logger, "pipeline"))

	clini, err := cohort.ReadTable(cfg.Paths.CliniTable)
	if err != nil {
		return Sources{}, fmt.Errorf("clinical table: %w", err)
	}
	truths, err := cohort.PatientGroundTruth(clini, cfg.Columns.Patient, cfg.Columns.GroundTruth)
	if err != nil {
		return Sources{}, fmt.Errorf("clinical table: %w", err)
	}
	slideTable, err := cohort.ReadTable(cfg.Paths.SlideTable)
	if err != nil {
		return Sources{}, fmt.Errorf("slide table: %w", err)
	}
	slides, err := cohort.SlidePatients(slideTable, cfg.Paths.FeatureDir, cfg.Columns.Filename, cfg.Columns.Patient, cfg.Features.Extension)
	if err != nil {
		return Sources{}, fmt.Errorf("slide table: %w", err)
	}
	loadLogger.Info("source tables loaded",
		logging.Int("clinical_rows", len(truths)),
		logging.Int("slide_rows", len(slides)),
		logging.String("feature_dir", cfg.Paths.FeatureDir),
	)

	corpus, diag, err := cohort.Reconcile(logging.WithStage(ctx, StageReconcile), truths, slides, cohort.Options{
		DropMissingGroundTruth: dropMissing,
		Probe:                  features.FileStore{Dataset: cfg.Features.Dataset},
		Logger:                 logger,
	})
	if err != nil {
		return Sources{}, err
	}
	return Sources{Corpus: corpus, Diagnostics: diag}, nil
}

// Prepare runs the full preparation: load, reconcile, split, build loaders
// and gate on category populations. Any error stops before a Plan exists.
func Prepare(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Plan, error) {
	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	log := logging.NewComponentLogger(logger, "pipeline")

	sources, err := LoadCorpus(ctx, cfg, cfg.Dataset.DropMissingGroundTruth, logger)
	if err != nil {
		return nil, err
	}
	corpus := sources.Corpus
	if len(corpus) == 0 {
		return nil, ErrEmptyCorpus
	}

	plan := &Plan{RunID: runID, Corpus: corpus, Diagnostics: sources.Diagnostics}

	splitCtx := logging.WithStage(ctx, StageSplit)
	patients := corpus.Patients()
	labels := make([]cohort.GroundTruth, len(patients))
	for i, id := range patients {
		labels[i] = corpus[id].GroundTruth
	}
	if cfg.CrossValidation() {
		plan.Folds, err = split.KFold(patients, labels, cfg.Split.NSplits, cfg.Split.Seed)
		if err != nil {
			return nil, fmt.Errorf("plan folds: %w", err)
		}
		for i, fold := range plan.Folds {
			if err := split.CheckDisjoint(fold.Train, fold.Valid); err != nil {
				return nil, fmt.Errorf("fold %d: %w", i, err)
			}
		}
		plan.Train, plan.Valid = plan.Folds[0].Train, plan.Folds[0].Valid
	} else {
		plan.Train, plan.Valid, err = split.Stratified(patients, labels, cfg.Split.ValidFraction, cfg.Split.Seed)
		if err != nil {
			return nil, fmt.Errorf("plan split: %w", err)
		}
		if err := split.CheckDisjoint(plan.Train, plan.Valid); err != nil {
			return nil, err
		}
	}
	logging.WithContext(splitCtx, log).Info("split planned",
		logging.Int("train_patients", len(plan.Train)),
		logging.Int("valid_patients", len(plan.Valid)),
		logging.Int("folds", len(plan.Folds)),
	)

	assembleCtx := logging.WithStage(ctx, StageAssemble)
	sampling, err := loader.ParseSampling(cfg.Dataset.Sampling)
	if err != nil {
		return nil, err
	}
	store := features.FileStore{Dataset: cfg.Features.Dataset}
	plan.TrainLoader, err = loader.New(corpus.Records(plan.Train), loader.Options{
		Categories: cfg.Dataset.Categories,
		BagSize:    max(cfg.Dataset.BagSize, 0),
		BatchSize:  cfg.Dataset.BatchSize,
		Shuffle:    true,
		Workers:    cfg.Dataset.NumWorkers,
		Sampling:   sampling,
		Seed:       cfg.Dataset.Seed,
		Store:      store,
		Logger:     logging.WithContext(assembleCtx, logger),
	})
	if err != nil {
		return nil, fmt.Errorf("training loader: %w", err)
	}
	plan.Categories = plan.TrainLoader.Categories()

	plan.ValidLoader, err = loader.New(corpus.Records(plan.Valid), loader.Options{
		Categories: plan.Categories,
		BagSize:    0,
		BatchSize:  1,
		Workers:    cfg.Dataset.NumWorkers,
		Sampling:   sampling,
		Seed:       cfg.Dataset.Seed,
		Store:      store,
		Logger:     logging.WithContext(assembleCtx, logger),
	})
	if err != nil {
		return nil, fmt.Errorf("validation loader: %w", err)
	}

	bag, _, _, err := plan.TrainLoader.Item(assembleCtx, 0)
	if err != nil {
		return nil, fmt.Errorf("sample training bag: %w", err)
	}
	plan.DimFeatures = bag.Dim
	logging.WithContext(assembleCtx, log).Info("loaders ready",
		logging.Strings("categories", plan.Categories),
		logging.Int("dim_features", plan.DimFeatures),
		logging.Int("train_batches", plan.TrainLoader.NumBatches()),
	)

	gateCtx := logging.WithStage(ctx, StageGating)
	plan.Counts = weights.Count(plan.TrainLoader.Targets(), len(plan.Categories))
	if len(plan.Categories) < cfg.Gating.MinCategories {
		return nil, &weights.InsufficientCategoryCountError{Categories: plan.Categories}
	}
	plan.Weights, err = weights.Compute(plan.Categories, plan.Counts, cfg.Gating.MinCategoryCount)
	if err != nil {
		logging.ErrorWithContext(logging.WithContext(gateCtx, log), "category gating failed", "gating_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "collect more patients for small categories or lower gating.min_category_count"),
		)
		return nil, err
	}
	logging.WithContext(gateCtx, log).Info("category gating passed",
		logging.Strings("categories", plan.Categories),
		logging.Any("counts", plan.Counts),
	)
	return plan, nil
}

// PrepareDeployment builds a full-bag evaluation loader over every patient
// with archives, keeping patients without ground truth. categories must be
// the order the model was trained with.
func PrepareDeployment(ctx context.Context, cfg *config.Config, categories []string, logger *slog.Logger) (*Deployment, error) {
	if len(categories) == 0 {
		return nil, errors.New("deployment needs the training category order")
	}
	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)

	sources, err := LoadCorpus(ctx, cfg, false, logger)
	if err != nil {
		return nil, err
	}
	if len(sources.Corpus) == 0 {
		return nil, ErrEmptyCorpus
	}
	sampling, err := loader.ParseSampling(cfg.Dataset.Sampling)
	if err != nil {
		return nil, err
	}
	l, err := loader.New(sources.Corpus.Records(sources.Corpus.Patients()), loader.Options{
		Categories: categories,
		BatchSize:  1,
		Workers:    cfg.Dataset.NumWorkers,
		Sampling:   sampling,
		Seed:       cfg.Dataset.Seed,
		Store:      features.FileStore{Dataset: cfg.Features.Dataset},
		Logger:     logging.WithContext(logging.WithStage(ctx, StageAssemble), logger),
	})
	if err != nil {
		return nil, fmt.Errorf("deployment loader: %w", err)
	}
	return &Deployment{
		RunID:       runID,
		Corpus:      sources.Corpus,
		Diagnostics: sources.Diagnostics,
		Categories:  l.Categories(),
		Loader:      l,
	}, nil
}
