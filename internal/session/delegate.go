package session

import (
	"github.com/corelocation/engine/internal/fix"
	"github.com/corelocation/engine/internal/region"
)

// AuthStatus models the external authorization prerequisite. The core
// engine never changes it itself; a host mutates it and forwards the
// change via OnAuthorizationChanged.
type AuthStatus int

const (
	AuthNotDetermined AuthStatus = iota
	AuthDenied
	AuthAuthorizedAlways
	AuthAuthorizedWhenInUse
)

// Delegate is the client-facing event sink. Every method has a no-op
// default (via BaseDelegate) so clients implement only what they need,
// matching spec.md §6 and the teacher corpus's "optional delegate
// methods" pattern.
type Delegate interface {
	OnUpdate(f fix.Fix)
	OnFail(err error)
	OnAuthorizationChanged(status AuthStatus)
	OnEnterRegion(r region.Region)
	OnExitRegion(r region.Region)
	OnDetermineState(state region.State, r region.Region)
	OnMonitoringFailed(r *region.Region, err error)
	OnStartMonitoring(r region.Region)
}

// BaseDelegate implements Delegate with every method a no-op. Embed it
// to implement only the events you care about.
type BaseDelegate struct{}

func (BaseDelegate) OnUpdate(fix.Fix)                              {}
func (BaseDelegate) OnFail(error)                                  {}
func (BaseDelegate) OnAuthorizationChanged(AuthStatus)             {}
func (BaseDelegate) OnEnterRegion(region.Region)                   {}
func (BaseDelegate) OnExitRegion(region.Region)                    {}
func (BaseDelegate) OnDetermineState(region.State, region.Region)  {}
func (BaseDelegate) OnMonitoringFailed(*region.Region, error)      {}
func (BaseDelegate) OnStartMonitoring(region.Region)               {}

var _ Delegate = BaseDelegate{}
