package pipeline_test

import (
	"testing"

	"outletops/testutil"
)

func TestLayering(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".",
		testutil.AnyOf(testutil.InfraImportForbidden, testutil.ServiceImportForbidden, testutil.DriverImportForbidden),
		"pipeline holds pure logic and is driven by the service")
}
