package chatroom

type Action string

const (
	ActionMarkOrdered   Action = "mark_ordered"
	ActionMarkDelivered Action = "mark_delivered"
	ActionMakeAdmin     Action = "make_admin"
	ActionRemoveMember  Action = "remove_member"
)

// Policy says how an action reconciles local state once the backend accepts it.
//
// Refetch reloads the chatroom. Chatroom state is never patched locally, so a rejected
// or partial update cannot hide behind a stale view.
// Optimistic changes the local roster before the backend answers and restores it on
// failure. Banner is the success text shown for DefaultBannerDuration. Failures never
// show a banner; they are logged and returned.
type Policy struct {
	Refetch    bool
	Optimistic bool
	Banner     string
}

var Policies = map[Action]Policy{
	ActionMarkOrdered:   {Refetch: true, Banner: "Order marked as placed"},
	ActionMarkDelivered: {Refetch: true, Banner: "Order marked as delivered"},
	ActionMakeAdmin:     {Refetch: true, Banner: "Admin rights transferred"},
	ActionRemoveMember:  {Optimistic: true},
}
