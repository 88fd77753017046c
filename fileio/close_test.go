package fileio_test

import (
	"strings"
	"testing"

	"github.com/grailbio/dqp/errors"
	"github.com/grailbio/dqp/fileio"
)

type errFile struct {
	err error
}

func (f *errFile) Close() error {
	return f.err
}

func TestCloseAndReport(t *testing.T) {
	closeMsg := "close [seuozr]"
	returnMsg := "return [mntbnb]"

	// No return error, no close error.
	gotErr := func() (err error) {
		f := errFile{}
		defer fileio.CloseAndReport(&f, &err)
		return nil
	}()
	if gotErr != nil {
		t.Errorf("got %v, want nil", gotErr)
	}

	// No return error, close error.
	gotErr = func() (err error) {
		f := errFile{errors.New(closeMsg)}
		defer fileio.CloseAndReport(&f, &err)
		return nil
	}()
	if gotErr == nil || gotErr.Error() != closeMsg {
		t.Errorf("got %v, want %q", gotErr, closeMsg)
	}

	// Return error, no close error.
	gotErr = func() (err error) {
		f := errFile{}
		defer fileio.CloseAndReport(&f, &err)
		return errors.New(returnMsg)
	}()
	if gotErr == nil || gotErr.Error() != returnMsg {
		t.Errorf("got %v, want %q", gotErr, returnMsg)
	}

	// Return error, close error: both must be visible in the result.
	gotErr = func() (err error) {
		f := errFile{errors.New(closeMsg)}
		defer fileio.CloseAndReport(&f, &err)
		return errors.New(returnMsg)
	}()
	if gotErr == nil {
		t.Fatal("got nil, want a chained error")
	}
	if !strings.Contains(gotErr.Error(), returnMsg) || !strings.Contains(gotErr.Error(), closeMsg) {
		t.Errorf("got %q, want it to contain both %q and %q", gotErr.Error(), returnMsg, closeMsg)
	}
}
