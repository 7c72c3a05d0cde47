package backend

import (
	"context"
	"net/http"
)

// OpenER readiness data changes minute to minute, so none of it is cached.

func (c *Client) AssessEmergency(ctx context.Context, req EmergencyRequest) (EmergencyAssessment, error) {
	var out EmergencyAssessment
	err := c.gw.DoJSON(ctx, http.MethodPost, "/opener/emergencies/assess", req, &out)
	return out, err
}

func (c *Client) DispatchAlert(ctx context.Context, req DispatchRequest) (Alert, error) {
	var out Alert
	err := c.gw.DoJSON(ctx, http.MethodPost, "/opener/alerts/dispatch", req, &out)
	return out, err
}

func (c *Client) Hospitals(ctx context.Context) (HospitalList, error) {
	var out HospitalList
	err := c.gw.DoJSON(ctx, http.MethodGet, "/opener/hospitals", nil, &out)
	return out, err
}

func (c *Client) UpdateHospital(ctx context.Context, hospitalID string, upd HospitalUpdate) (Hospital, error) {
	var out Hospital
	err := c.gw.DoJSON(ctx, http.MethodPatch, "/opener/hospitals/"+segment(hospitalID), upd, &out)
	return out, err
}
