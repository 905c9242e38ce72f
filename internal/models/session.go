package models

import "time"

type Session struct {
	AccessToken string
	User        string
}

// DeviceCode is what the user needs to approve a device login in the browser.
type DeviceCode struct {
	DeviceCode      string
	UserCode        string
	VerificationURI string
	Expiry          time.Time
	Interval        time.Duration
}

type User struct {
	Login string
	Name  string
	Email string
}
