// Command payrollctl serves and queries the payroll agent orchestrator.
package main

func main() {
	Execute()
}
