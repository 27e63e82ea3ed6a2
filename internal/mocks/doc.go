// Package mocks provides shared testify/mock implementations of the
// interfaces the services depend on.
//
//	runner := new(mocks.MockTaskRunner)
//	runner.On("Submit", mock.Anything, mock.Anything).Return(nil)
//	svc, _ := service.NewTaskService(tasks, docs, runner, logger)
//	...
//	runner.AssertExpectations(t)
package mocks
