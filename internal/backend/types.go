package backend

// ContinueRequest is one conversational turn sent to the triage model.
type ContinueRequest struct {
	ConversationHistory string `json:"conversation_history"`
	PatientMessage      string `json:"patient_message"`
	StaffNotes          string `json:"staff_notes,omitempty"`
	Language            string `json:"language"`
}

type ContinueReply struct {
	Response             string  `json:"response"`
	ResponseEnglish      *string `json:"response_english"`
	Language             string  `json:"language"`
	ConversationComplete bool    `json:"conversation_complete"`
	ShouldAutoComplete   bool    `json:"should_auto_complete"`
}

type translateRequest struct {
	Text           string `json:"text"`
	SourceLanguage string `json:"source_language"`
}

type translateReply struct {
	TranscriptEnglish *string `json:"transcript_english"`
	Language          string  `json:"language"`
}

// AssessmentRequest classifies the full joined patient transcript.
type AssessmentRequest struct {
	TranscriptText string `json:"transcript_text"`
	StaffNotes     string `json:"staff_notes"`
	Language       string `json:"language"`
}

type Evidence struct {
	SourceType       string  `json:"source_type"`
	GuidelineSection string  `json:"guideline_section"`
	SourceExcerpt    string  `json:"source_excerpt"`
	SourceDocument   string  `json:"source_document,omitempty"`
	Cadre            string  `json:"cadre,omitempty"`
	Condition        string  `json:"condition,omitempty"`
	ReferralRequired bool    `json:"referral_required,omitempty"`
	Score            float64 `json:"score,omitempty"`
}

type Recommendation struct {
	SummaryOfFindings     string   `json:"summary_of_findings"`
	RecommendedActions    []string `json:"recommended_actions_for_chw"`
	UrgencyLevel          string   `json:"urgency_level"`
	ImportantNotes        []string `json:"important_notes_for_chw,omitempty"`
	EvidenceBasedNotes    string   `json:"evidence_based_notes,omitempty"`
	AdditionalInformation string   `json:"additional_information,omitempty"`
}

// TriageResult is the structured assessment rendered on the results screen.
type TriageResult struct {
	Mode              string         `json:"mode,omitempty"`
	Language          string         `json:"language"`
	InputTranscript   string         `json:"input_transcript,omitempty"`
	ExtractedSymptoms []string       `json:"extracted_symptoms"`
	Recommendation    Recommendation `json:"triage_recommendation"`
	Evidence          []Evidence     `json:"evidence"`
	RiskLevel         string         `json:"risk_level"`
	Transcript        string         `json:"transcript,omitempty"`
}

type Transcription struct {
	Transcript        string `json:"transcript"`
	TranscriptEnglish string `json:"transcript_english,omitempty"`
	Language          string `json:"language"`
}

type synthesizeRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	VoiceID  string `json:"voice_id"`
}

type CreatePatientFromTriage struct {
	FullName         string       `json:"full_name"`
	Age              *int         `json:"age"`
	Gender           *string      `json:"gender"`
	PrimaryDiagnosis *string      `json:"primary_diagnosis"`
	TriageResult     TriageResult `json:"triage_result"`
}

type CreatedPatient struct {
	Status        string `json:"status"`
	PatientID     string `json:"patient_id"`
	FullName      string `json:"full_name"`
	RiskLevel     string `json:"risk_level"`
	PatientStatus string `json:"patient_status"`
}

// Auth.

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FullName  string `json:"full_name"`
	Specialty string `json:"specialty,omitempty"`
	Role      string `json:"role,omitempty"`
}

type AuthUser struct {
	DoctorID     string `json:"doctor_id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	Specialty    string `json:"specialty"`
	WardID       string `json:"ward_id"`
	WardName     string `json:"ward_name"`
	HospitalID   string `json:"hospital_id"`
	HospitalName string `json:"hospital_name"`
}

type AuthToken struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	User        AuthUser `json:"user"`
}

// Shifts and scribe.

type Shift struct {
	ShiftID   string  `json:"shift_id"`
	StartedAt string  `json:"started_at"`
	WardID    *string `json:"ward_id"`
	WardName  *string `json:"ward_name,omitempty"`
}

type ActiveShift struct {
	Shift *Shift `json:"shift"`
}

type ShiftEnded struct {
	EndedAt  string  `json:"ended_at"`
	FinalCLS float64 `json:"final_cls"`
	Status   string  `json:"status"`
}

type SOAPNote struct {
	Subjective string `json:"subjective"`
	Objective  string `json:"objective"`
	Assessment string `json:"assessment"`
	Plan       string `json:"plan"`
}

type MedicationChange struct {
	Medication string `json:"medication"`
	Change     string `json:"change"`
	Reason     string `json:"reason,omitempty"`
}

type ScribeResult struct {
	ConsultationID    string             `json:"consultation_id"`
	Transcript        string             `json:"transcript"`
	SOAPNote          SOAPNote           `json:"soap_note"`
	PatientSummary    string             `json:"patient_summary"`
	ComplexityScore   float64            `json:"complexity_score"`
	Flags             []string           `json:"flags"`
	MedicationChanges []MedicationChange `json:"medication_changes"`
	SOAPError         string             `json:"soap_error,omitempty"`
}

type ScribeUpload struct {
	Audio       []byte
	Filename    string
	PatientUUID string
	PatientRef  string
	Language    string
}

// Patients.

type Patient struct {
	PatientID        string `json:"patient_id"`
	FullName         string `json:"full_name"`
	Age              *int   `json:"age"`
	Gender           string `json:"gender,omitempty"`
	BedNumber        string `json:"bed_number,omitempty"`
	PrimaryDiagnosis string `json:"primary_diagnosis,omitempty"`
	Status           string `json:"status"`
	RiskLevel        string `json:"risk_level,omitempty"`
	LastSeen         string `json:"last_seen,omitempty"`
}

type PatientGroups struct {
	Critical   []Patient `json:"critical"`
	Stable     []Patient `json:"stable"`
	Discharged []Patient `json:"discharged"`
}

type PatientList struct {
	Total    int           `json:"total"`
	Patients PatientGroups `json:"patients"`
}

type ActionItem struct {
	ItemID      string `json:"item_id"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at,omitempty"`
	CompletedAt string `json:"completed_at,omitempty"`
}

type PatientDetail struct {
	Patient
	ActionItems   []ActionItem     `json:"action_items"`
	Consultations []map[string]any `json:"consultations,omitempty"`
}

type ChronicCondition struct {
	Condition string `json:"condition"`
	Details   string `json:"details"`
}

type PatientSummary struct {
	ChronicConditions []ChronicCondition `json:"chronic_conditions"`
	FlaggedPatterns   []string           `json:"flagged_patterns"`
	Summary           string             `json:"summary"`
}

type NewPatient struct {
	FullName         string `json:"full_name"`
	Age              *int   `json:"age,omitempty"`
	Gender           string `json:"gender,omitempty"`
	BedNumber        string `json:"bed_number,omitempty"`
	PrimaryDiagnosis string `json:"primary_diagnosis,omitempty"`
	WardUUID         string `json:"ward_uuid,omitempty"`
}

type NewActionItem struct {
	Description string `json:"description"`
	Priority    string `json:"priority,omitempty"`
}

type HandoverReport struct {
	ReportID    string           `json:"report_id"`
	GeneratedAt string           `json:"generated_at"`
	Summary     string           `json:"summary"`
	Patients    []map[string]any `json:"patients"`
}

type ShiftConsultations struct {
	ConsultationsCount int              `json:"consultations_count"`
	Consultations      []map[string]any `json:"consultations"`
}

type ForecastPoint struct {
	Time string  `json:"time"`
	CLS  float64 `json:"cls"`
}

type WardStats struct {
	WardID                string          `json:"ward_id"`
	WardName              string          `json:"ward_name"`
	HospitalName          *string         `json:"hospital_name"`
	CapacityPercent       float64         `json:"capacity_percent"`
	PatientCount          int             `json:"patient_count"`
	WardCapacity          int             `json:"ward_capacity"`
	AvgFatigueScore       float64         `json:"avg_fatigue_score"`
	ActiveDoctors         int             `json:"active_doctors"`
	TotalDoctors          int             `json:"total_doctors"`
	PredictedCriticalTime *string         `json:"predicted_critical_time"`
	FatigueForecast       []ForecastPoint `json:"fatigue_forecast"`
	UnitStatus            string          `json:"unit_status"`
}

// Burnout and admin dashboards.

type CurrentShift struct {
	ShiftID      string  `json:"shift_id"`
	Start        string  `json:"start"`
	PatientsSeen int     `json:"patients_seen"`
	HoursActive  float64 `json:"hours_active"`
}

type ScoreBreakdown struct {
	Volume      float64 `json:"volume"`
	Complexity  float64 `json:"complexity"`
	Duration    float64 `json:"duration"`
	Consecutive float64 `json:"consecutive"`
}

type DailyLoad struct {
	Date   string  `json:"date"`
	CLS    float64 `json:"cls"`
	Status string  `json:"status"`
}

type Burnout struct {
	DoctorID           string         `json:"doctor_id"`
	DoctorName         string         `json:"doctor_name"`
	CurrentShift       *CurrentShift  `json:"current_shift"`
	CognitiveLoadScore float64        `json:"cognitive_load_score"`
	Status             string         `json:"status"`
	ScoreBreakdown     ScoreBreakdown `json:"score_breakdown"`
	History7Days       []DailyLoad    `json:"history_7_days"`
	Recommendation     string         `json:"recommendation"`
}

type TeamStats struct {
	TotalActive        int     `json:"total_active"`
	RedCount           int     `json:"red_count"`
	AmberCount         int     `json:"amber_count"`
	GreenCount         int     `json:"green_count"`
	AvgCLS             float64 `json:"avg_cls"`
	TotalPatientsToday int     `json:"total_patients_today"`
}

type DoctorLoad struct {
	DoctorID           string  `json:"doctor_id"`
	Name               string  `json:"name"`
	Specialty          string  `json:"specialty"`
	Role               string  `json:"role,omitempty"`
	WardName           string  `json:"ward_name"`
	HospitalName       string  `json:"hospital_name,omitempty"`
	CLS                float64 `json:"cls"`
	Status             string  `json:"status"`
	PatientsSeen       int     `json:"patients_seen"`
	HoursActive        float64 `json:"hours_active"`
	IsOnShift          bool    `json:"is_on_shift"`
	ShiftDurationHours float64 `json:"shift_duration_hours"`
}

type RedZoneAlert struct {
	DoctorID string  `json:"doctor_id"`
	Name     string  `json:"name"`
	CLS      float64 `json:"cls"`
	Message  string  `json:"message"`
}

type AdminDashboard struct {
	GeneratedAt   string         `json:"generated_at"`
	TeamStats     TeamStats      `json:"team_stats"`
	Doctors       []DoctorLoad   `json:"doctors"`
	RedZoneAlerts []RedZoneAlert `json:"red_zone_alerts"`
}

type Unit struct {
	WardID       string  `json:"ward_id"`
	WardName     string  `json:"ward_name"`
	WardType     string  `json:"ward_type"`
	HospitalName string  `json:"hospital_name"`
	FatigueIndex float64 `json:"fatigue_index"`
	PatientCount int     `json:"patient_count"`
	DoctorCount  int     `json:"doctor_count"`
	PatDocRatio  string  `json:"pat_doc_ratio"`
	Capacity     int     `json:"capacity"`
	Utilization  float64 `json:"utilization"`
	Status       string  `json:"status"`
}

type Reallocation struct {
	ID                    string  `json:"id"`
	SourceWard            string  `json:"source_ward"`
	SourceHospital        string  `json:"source_hospital"`
	SourceFatigue         float64 `json:"source_fatigue"`
	SourceAvailableStaff  int     `json:"source_available_staff"`
	TargetWard            string  `json:"target_ward"`
	TargetHospital        string  `json:"target_hospital"`
	TargetFatigue         float64 `json:"target_fatigue"`
	ProjectedFatigueAfter float64 `json:"projected_fatigue_after"`
	FatigueReduction      string  `json:"fatigue_reduction"`
	Priority              string  `json:"priority"`
}

type Allocation struct {
	HospitalName      string         `json:"hospital_name"`
	HospitalsInScope  []string       `json:"hospitals_in_scope"`
	OverburdenedUnits []Unit         `json:"overburdened_units"`
	StableUnits       []Unit         `json:"stable_units"`
	Recommendations   []Reallocation `json:"recommendations"`
	OverburdenedCount int            `json:"overburdened_count"`
	StableCount       int            `json:"stable_count"`
}

type StaffNode struct {
	DoctorID  string  `json:"doctor_id"`
	Name      string  `json:"name"`
	Role      string  `json:"role"`
	Specialty string  `json:"specialty,omitempty"`
	CLS       float64 `json:"cls"`
	Status    string  `json:"status"`
}

type WardNode struct {
	WardID   string      `json:"ward_id"`
	Name     string      `json:"name"`
	WardType string      `json:"ward_type"`
	Doctors  []StaffNode `json:"doctors"`
}

type HospitalNode struct {
	HospitalID string      `json:"hospital_id"`
	Name       string      `json:"name"`
	Wards      []WardNode  `json:"wards"`
	Admins     []StaffNode `json:"admins"`
}

type OrgNode struct {
	OrgID     string         `json:"org_id"`
	Name      string         `json:"name"`
	Hospitals []HospitalNode `json:"hospitals"`
}

type Organogram struct {
	Scope         string         `json:"scope"`
	Organizations []OrgNode      `json:"organizations,omitempty"`
	Hospitals     []HospitalNode `json:"hospitals,omitempty"`
}

// OpenER emergency routing.

type EmergencyRequest struct {
	IncidentType string   `json:"incident_type"`
	Lat          float64  `json:"lat"`
	Lng          float64  `json:"lng"`
	PatientAge   int      `json:"patient_age"`
	Sex          string   `json:"sex"`
	KeySymptoms  []string `json:"key_symptoms"`
}

type SpecialistStatus struct {
	Required []string `json:"required"`
	OnSeat   []string `json:"on_seat"`
	Match    bool     `json:"match"`
}

type BedStatus struct {
	CriticalBeds int `json:"critical_beds"`
}

type ReadinessCard struct {
	HospitalID       string           `json:"hospital_id"`
	HospitalName     string           `json:"hospital_name"`
	DistanceKM       float64          `json:"distance_km"`
	ETAMinutes       int              `json:"eta_minutes"`
	BedStatus        BedStatus        `json:"bed_status"`
	SpecialistStatus SpecialistStatus `json:"specialist_status"`
	StaffLoadStatus  string           `json:"staff_load_status"`
	QueueLevel       int              `json:"queue_level"`
	FinalScore       float64          `json:"final_score"`
	Reasons          []string         `json:"reasons"`
	LastUpdated      *string          `json:"last_updated,omitempty"`
}

type EmergencyAssessment struct {
	EmergencyID          string          `json:"emergency_id"`
	IncidentType         string          `json:"incident_type"`
	SeverityBand         string          `json:"severity_band"`
	EmergencySummary     string          `json:"emergency_summary"`
	RecommendedHospitals []ReadinessCard `json:"recommended_hospitals"`
}

type DispatchRequest struct {
	EmergencyID string `json:"emergency_id"`
	HospitalID  string `json:"hospital_id"`
	ETAMinutes  int    `json:"eta_minutes"`
	Summary     string `json:"summary"`
}

type Alert struct {
	AlertID      string `json:"alert_id"`
	EmergencyID  string `json:"emergency_id"`
	HospitalID   string `json:"hospital_id"`
	HospitalName string `json:"hospital_name"`
	ETAMinutes   int    `json:"eta_minutes"`
	Summary      string `json:"summary"`
	AckStatus    string `json:"ack_status"`
	AckTime      string `json:"ack_time"`
}

type Hospital struct {
	HospitalID        string   `json:"hospital_id"`
	Name              string   `json:"name"`
	Lat               float64  `json:"lat"`
	Lng               float64  `json:"lng"`
	CriticalBeds      int      `json:"critical_beds"`
	SpecialistsOnSeat []string `json:"specialists_on_seat"`
	QueueLevel        int      `json:"queue_level"`
	StaffLoadStatus   string   `json:"staff_load_status"`
	LastUpdated       *string  `json:"last_updated,omitempty"`
	Notes             string   `json:"notes,omitempty"`
}

type HospitalList struct {
	Hospitals []Hospital `json:"hospitals"`
}

type HospitalUpdate struct {
	CriticalBeds      int      `json:"critical_beds"`
	SpecialistsOnSeat []string `json:"specialists_on_seat"`
	QueueLevel        int      `json:"queue_level"`
	Notes             string   `json:"notes"`
}
