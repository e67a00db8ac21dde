package health

// mockDispatcher implements DispatcherChecker
type mockDispatcher struct {
	running bool
}

func (m *mockDispatcher) Running() bool { return m.running }
