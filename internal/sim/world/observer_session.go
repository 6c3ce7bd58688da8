package world

func clampEvery(v, def int) int {
	if v <= 0 {
		return def
	}
	if v > 600 {
		return 600
	}
	return v
}

func (w *World) handleObserverJoin(req ObserverJoinRequest) {
	if w == nil || req.SessionID == "" || req.TickOut == nil {
		return
	}
	// Replace existing session id if any.
	if old := w.observers[req.SessionID]; old != nil {
		close(old.tickOut)
	}
	w.observers[req.SessionID] = &observerClient{
		id:         req.SessionID,
		tickOut:    req.TickOut,
		everyTicks: clampEvery(req.EveryTicks, 1),
		focusAgent: req.FocusAgent,
	}
}

func (w *World) handleObserverSubscribe(req ObserverSubscribeRequest) {
	c := w.observers[req.SessionID]
	if c == nil {
		return
	}
	c.everyTicks = clampEvery(req.EveryTicks, c.everyTicks)
	c.focusAgent = req.FocusAgent
}

func (w *World) handleObserverLeave(sessionID string) {
	if sessionID == "" {
		return
	}
	c := w.observers[sessionID]
	if c == nil {
		return
	}
	delete(w.observers, sessionID)
	close(c.tickOut)
}

func (w *World) closeObservers() {
	for id, c := range w.observers {
		delete(w.observers, id)
		close(c.tickOut)
	}
}
