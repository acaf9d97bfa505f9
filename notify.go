package linkage

// Notifier receives a call for every record whose relationship membership
// changed. It is called synchronously, after the mutation is fully applied.
type Notifier interface {
	Notify(rec Record, relationship string)
}

// NotifierFunc type is an adapter to allow the use of ordinary
// functions as Notifier.
type NotifierFunc func(rec Record, relationship string)

// Notify calls f(rec, relationship).
func (f NotifierFunc) Notify(rec Record, relationship string) {
	f(rec, relationship)
}

// ChangeNotifiable is implemented by record types that want to be told
// when one of their relationships changed.
type ChangeNotifiable interface {
	NotifyRelationshipChange(relationship string)
}

// RecordNotifier forwards notifications to records implementing
// ChangeNotifiable and ignores the others.
type RecordNotifier struct{}

// Notify implements Notifier.
func (RecordNotifier) Notify(rec Record, relationship string) {
	if n, ok := rec.(ChangeNotifiable); ok {
		n.NotifyRelationshipChange(relationship)
	}
}

// MultiNotifier fans a notification out to several notifiers in order.
type MultiNotifier []Notifier

// Notify implements Notifier.
func (m MultiNotifier) Notify(rec Record, relationship string) {
	for _, n := range m {
		if n != nil {
			n.Notify(rec, relationship)
		}
	}
}

var (
	_ Notifier = RecordNotifier{}
	_ Notifier = MultiNotifier(nil)
	_ Notifier = NotifierFunc(nil)
)
