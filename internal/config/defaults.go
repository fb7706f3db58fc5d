package config

const (
	defaultOutputDir        = "~/.local/share/milprep/output"
	defaultLogDir           = "~/.local/share/milprep/logs"
	defaultPatientColumn    = "PATIENT"
	defaultFilenameColumn   = "FILENAME"
	defaultDatasetName      = "feats"
	defaultFeatureExtension = ".mpk"
	defaultBagSize          = 512
	defaultBatchSize        = 64
	defaultNumWorkers       = 8
	defaultValidFraction    = 0.25
	defaultMinCategoryCount = 16
	defaultMinCategories    = 2
	defaultManifestName     = "manifest.db"
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"

	// SamplingSeeded draws bag samples from generators derived from the
	// configured seed, so a run is reproducible end to end.
	SamplingSeeded = "seeded"
	// SamplingEntropy seeds every bag draw from the runtime source.
	SamplingEntropy = "entropy"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
		},
		Columns: Columns{
			Patient:  defaultPatientColumn,
			Filename: defaultFilenameColumn,
		},
		Features: Features{
			Dataset:   defaultDatasetName,
			Extension: defaultFeatureExtension,
		},
		Dataset: Dataset{
			BagSize:                defaultBagSize,
			BatchSize:              defaultBatchSize,
			NumWorkers:             defaultNumWorkers,
			DropMissingGroundTruth: true,
			Sampling:               SamplingEntropy,
		},
		Split: Split{
			ValidFraction: defaultValidFraction,
		},
		Gating: Gating{
			MinCategoryCount: defaultMinCategoryCount,
			MinCategories:    defaultMinCategories,
		},
		Manifest: Manifest{
			Enabled: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
