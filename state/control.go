package state

// Control holds the routing fields owned by the dispatcher.
type Control struct {
	Next          string
	AwaitingInput string
	DelegateTo    string
	Callback      string
	Chain         []string
	LoopbackDepth int
	ErrorHandler  string
	ErrorContext  string
	RoutingEcho   string
	Inbound       string
}

func (c Control) clone() Control {
	c.Chain = append([]string(nil), c.Chain...)
	return c
}

// Signal is a continuation requested by a handler.
type Signal interface {
	signal()
}

// Resume suspends and routes the next user message back to Target.
type Resume struct{ Target string }

// Delegate hands the turn directly to Target.
type Delegate struct{ Target string }

// Callback asks the router to visit Target next.
type Callback struct{ Target string }

// Chain queues handlers to run in order.
type Chain struct{ Queue []string }

// Fail surfaces an error through the error-handler node.
type Fail struct {
	Handler string
	Context string
}

// Terminal ends the turn.
type Terminal struct{}

func (Resume) signal()   {}
func (Delegate) signal() {}
func (Callback) signal() {}
func (Chain) signal()    {}
func (Fail) signal()     {}
func (Terminal) signal() {}

// Record stores sig in the control record. A nil or Terminal signal
// leaves the record unchanged.
func (c *Control) Record(sig Signal) {
	switch s := sig.(type) {
	case Resume:
		c.AwaitingInput = s.Target
	case Delegate:
		c.DelegateTo = s.Target
	case Callback:
		c.Callback = s.Target
	case Chain:
		c.Chain = append([]string(nil), s.Queue...)
	case Fail:
		c.ErrorHandler = s.Handler
		c.ErrorContext = s.Context
	}
}

// Consumed names the control fields a routing decision used up.
type Consumed int

const (
	ConsumedNone Consumed = iota
	ConsumedAwaiting
	ConsumedCallback
	ConsumedDelegate
	ConsumedChainHead
)

// Consume clears the field named by k.
func (c *Control) Consume(k Consumed) {
	switch k {
	case ConsumedAwaiting:
		c.AwaitingInput = ""
	case ConsumedCallback:
		c.Callback = ""
	case ConsumedDelegate:
		c.DelegateTo = ""
	case ConsumedChainHead:
		if len(c.Chain) > 0 {
			c.Chain = c.Chain[1:]
		}
	}
}

// ClearError resets the error fields.
func (c *Control) ClearError() {
	c.ErrorHandler = ""
	c.ErrorContext = ""
}

// Terminate resets the control record after a terminal completion.
func (c *Control) Terminate() {
	c.Next = ""
	c.LoopbackDepth = 0
}
