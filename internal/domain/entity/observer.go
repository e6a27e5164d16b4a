package entity

// Observer receives lifecycle events of an ExchangeRate. Implementations
// must be comparable (pointer receivers) so they can be detached again;
// Attach rejects the others.
type Observer interface {
	// ExchangeRateCreated is sent once the owner of a new rate announces it
	ExchangeRateCreated(current Snapshot) error

	// ExchangeRateUpdated is sent after every update, changed or not
	ExchangeRateUpdated(previous, current Snapshot) error

	// ExchangeRateChanged is sent after ExchangeRateUpdated when buy or sale moved
	ExchangeRateChanged(previous, current Snapshot) error
}

// ObserverFuncs adapts plain functions to the Observer interface. Nil
// functions are skipped. Attach it by pointer.
type ObserverFuncs struct {
	OnCreated func(current Snapshot) error
	OnUpdated func(previous, current Snapshot) error
	OnChanged func(previous, current Snapshot) error
}

// ExchangeRateCreated calls OnCreated
func (o *ObserverFuncs) ExchangeRateCreated(current Snapshot) error {
	if o.OnCreated == nil {
		return nil
	}
	return o.OnCreated(current)
}

// ExchangeRateUpdated calls OnUpdated
func (o *ObserverFuncs) ExchangeRateUpdated(previous, current Snapshot) error {
	if o.OnUpdated == nil {
		return nil
	}
	return o.OnUpdated(previous, current)
}

// ExchangeRateChanged calls OnChanged
func (o *ObserverFuncs) ExchangeRateChanged(previous, current Snapshot) error {
	if o.OnChanged == nil {
		return nil
	}
	return o.OnChanged(previous, current)
}
