package backend

import (
	"context"
	"net/http"

	"github.com/aidcare/copilot/internal/cache"
	"github.com/aidcare/copilot/internal/gateway"
)

var allNamespaces = []cache.Namespace{cache.NamespaceBurnout, cache.NamespacePatients, cache.NamespaceAdmin}

func (c *Client) StartShift(ctx context.Context, wardID string) (Shift, error) {
	var ward *string
	if wardID != "" {
		ward = &wardID
	}
	var out Shift
	if err := c.gw.DoJSON(ctx, http.MethodPost, "/doctor/shifts/start/", map[string]any{"ward_uuid": ward}, &out); err != nil {
		return Shift{}, err
	}
	c.invalidate(ctx, allNamespaces...)
	return out, nil
}

func (c *Client) EndShift(ctx context.Context, shiftID string) (ShiftEnded, error) {
	var out ShiftEnded
	if err := c.gw.DoJSON(ctx, http.MethodPost, "/doctor/shifts/end/", map[string]string{"shift_uuid": shiftID}, &out); err != nil {
		return ShiftEnded{}, err
	}
	c.invalidate(ctx, allNamespaces...)
	return out, nil
}

// ActiveShift is not cached: it gates whether the operator can start a shift.
func (c *Client) ActiveShift(ctx context.Context) (ActiveShift, error) {
	var out ActiveShift
	err := c.gw.DoJSON(ctx, http.MethodGet, "/doctor/shifts/active", nil, &out)
	return out, err
}

// Scribe uploads a consultation recording. It changes patient records, the
// clinician's load score and ward aggregates, so all three namespaces go.
func (c *Client) Scribe(ctx context.Context, up ScribeUpload) (ScribeResult, error) {
	filename := up.Filename
	if filename == "" {
		filename = "recording.wav"
	}
	form := gateway.NewForm().
		File("audio_file", filename, up.Audio).
		Field("patient_uuid", up.PatientUUID).
		Field("patient_ref", up.PatientRef).
		Field("language", up.Language)
	var out ScribeResult
	if err := c.gw.DoForm(ctx, "/doctor/scribe/", form, &out); err != nil {
		return ScribeResult{}, err
	}
	c.invalidate(ctx, allNamespaces...)
	return out, nil
}

func (c *Client) RegenerateSOAP(ctx context.Context, transcript, language string) (ScribeResult, error) {
	var out ScribeResult
	err := c.gw.DoJSON(ctx, http.MethodPost, "/doctor/scribe/regenerate", map[string]string{
		"transcript": transcript,
		"language":   language,
	}, &out)
	return out, err
}

func (c *Client) Patients(ctx context.Context, wardID string) (PatientList, error) {
	key := cache.Key{Namespace: cache.NamespacePatients, Operation: "list", Discriminator: wardID}
	return cache.CachedFetch(ctx, c.cache, key, func(ctx context.Context) (PatientList, error) {
		var out PatientList
		err := c.gw.DoJSON(ctx, http.MethodGet, withQuery("/patients/", "ward_uuid", wardID), nil, &out)
		return out, err
	})
}

func (c *Client) PatientDetail(ctx context.Context, patientID string) (PatientDetail, error) {
	key := cache.Key{Namespace: cache.NamespacePatients, Operation: "detail", Discriminator: patientID}
	return cache.CachedFetch(ctx, c.cache, key, func(ctx context.Context) (PatientDetail, error) {
		var out PatientDetail
		err := c.gw.DoJSON(ctx, http.MethodGet, "/patients/"+segment(patientID), nil, &out)
		return out, err
	})
}

func (c *Client) PatientSummary(ctx context.Context, patientID string) (PatientSummary, error) {
	key := cache.Key{Namespace: cache.NamespacePatients, Operation: "ai-summary", Discriminator: patientID}
	return cache.CachedFetch(ctx, c.cache, key, func(ctx context.Context) (PatientSummary, error) {
		var out PatientSummary
		err := c.gw.DoJSON(ctx, http.MethodGet, "/patients/"+segment(patientID)+"/ai-summary", nil, &out)
		return out, err
	})
}

func (c *Client) CreatePatient(ctx context.Context, p NewPatient) (Patient, error) {
	var out Patient
	if err := c.gw.DoJSON(ctx, http.MethodPost, "/patients/", p, &out); err != nil {
		return Patient{}, err
	}
	c.invalidate(ctx, cache.NamespacePatients)
	return out, nil
}

func (c *Client) CreateActionItem(ctx context.Context, patientID string, item NewActionItem) (ActionItem, error) {
	var out ActionItem
	if err := c.gw.DoJSON(ctx, http.MethodPost, "/patients/"+segment(patientID)+"/action-items", item, &out); err != nil {
		return ActionItem{}, err
	}
	c.invalidate(ctx, cache.NamespacePatients)
	return out, nil
}

func (c *Client) CompleteActionItem(ctx context.Context, itemID string) (ActionItem, error) {
	var out ActionItem
	if err := c.gw.DoJSON(ctx, http.MethodPatch, "/patients/action-items/"+segment(itemID)+"/complete", nil, &out); err != nil {
		return ActionItem{}, err
	}
	c.invalidate(ctx, cache.NamespacePatients)
	return out, nil
}

func (c *Client) GenerateHandover(ctx context.Context, shiftID, wardID, notes string) (HandoverReport, error) {
	var ward *string
	if wardID != "" {
		ward = &wardID
	}
	var out HandoverReport
	err := c.gw.DoJSON(ctx, http.MethodPost, "/doctor/handover/", map[string]any{
		"shift_uuid":     shiftID,
		"ward_uuid":      ward,
		"handover_notes": notes,
	}, &out)
	return out, err
}

func (c *Client) ShiftConsultations(ctx context.Context, shiftID string) (ShiftConsultations, error) {
	var out ShiftConsultations
	err := c.gw.DoJSON(ctx, http.MethodGet, withQuery("/doctor/handover/consultations", "shift_uuid", shiftID), nil, &out)
	return out, err
}

func (c *Client) WardStats(ctx context.Context, wardID string) (WardStats, error) {
	var out WardStats
	err := c.gw.DoJSON(ctx, http.MethodGet, "/units/"+segment(wardID)+"/stats", nil, &out)
	return out, err
}
