package client

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fixmyward/ward-service/internal/api/dto"
)

func TestResolve(t *testing.T) {
	citizen := &dto.UserResponse{ID: "u1", Role: "CITIZEN"}
	councillor := &dto.UserResponse{ID: "c1", Role: "COUNCILLOR"}

	cases := []struct {
		name      string
		requested View
		user      *dto.UserResponse
		want      View
	}{
		{"home anonymous", ViewHome, nil, ViewHome},
		{"home signed in", ViewHome, citizen, ViewHome},
		{"login anonymous", ViewLogin, nil, ViewLogin},
		{"forgot anonymous", ViewForgot, nil, ViewForgot},
		{"signup signed in", ViewSignup, citizen, ViewDashboard},
		{"dashboard anonymous", ViewDashboard, nil, ViewLogin},
		{"report anonymous", ViewReport, nil, ViewLogin},
		{"report citizen", ViewReport, citizen, ViewReport},
		{"report councillor", ViewReport, councillor, ViewDashboard},
		{"unknown signed in", View("settings"), councillor, ViewDashboard},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Resolve(tc.requested, tc.user))
		})
	}
}

func TestRouterStartsByAuthState(t *testing.T) {
	assert.Equal(t, ViewHome, NewRouter(nil).Current())

	r := NewRouter(&dto.UserResponse{Role: "CITIZEN"})
	assert.Equal(t, ViewDashboard, r.Current())
	assert.Equal(t, ViewReport, r.Navigate(ViewReport, &dto.UserResponse{Role: "CITIZEN"}))
	assert.Equal(t, ViewLogin, r.Navigate(ViewDashboard, nil))
}
