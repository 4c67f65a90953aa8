package constants

const (
	ENV = "API_ENV"

	ParamID        = "id"
	ParamIndex     = "index"
	ParamPatientID = "patient_id"
	ParamLabels    = "labels"
	ParamShow      = "show"
	ParamVersion   = "v"

	SessionCookie      = "tompei_session"
	SessionPrefix      = "tompei:session:"
	MemorySessionLimit = 10000
	LockPrefix         = "tompei:lock:patient:"

	ServerOK          = 0
	ServerInvalidData = 1
	ServerNotFound    = 2
	ServerError       = 3

	PatientIDLength = 7

	DefaultLabel = "Unknown"
	DefaultColor = "#FF0000"

	DefaultStrokeWidth = 2.0
	DefaultFillAlpha   = 0.2
	DefaultFigureCache = 64
	LegendTitle        = "Annotation Type"

	ArchiveName      = "TOMPEI-CMMD.zip"
	ArchiveExtracted = "extracted"
	ArchiveURL       = "https://www.cancerimagingarchive.net/wp-content/uploads/TOMPEI-CMMD_v01_20241220.zip"

	TCIAURI        = "https://services.cancerimagingarchive.net/nbia-api/services/v1"
	TCIACollection = "CMMD"

	ViewMLO       = "medio-lateral oblique"
	ViewMLOShort  = "mlo"
	DICOMExt      = ".dcm"
	AnnotationExt = ".json"

	MarkerExtracted = ".extracted"
	MarkerComplete  = ".complete"

	MsgNoPatients = "No patient IDs could be extracted from JSON files"
)
