package cdpcontrol

import (
	"encoding/json"
	"fmt"
)

// Labels of the betslip controls the automation activates. The sportsbook
// renders both as <input> elements whose value attribute carries the label.
const (
	continueLabel = "Continue"
	confirmLabel  = "Confirm Bet"
)

func jsString(v string) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func buildIIFE(body string) string {
	return "(function(){\n" + `try {
` + body + `
} catch (err) {
return JSON.stringify({ok:false,error_code:"` + CodeEvalFailure + `",error_message:String(err && err.message || err)});
}
})()`
}

func wrapJSEval(body string) string { return buildIIFE(body) }

// jsListInputValues collects the visible value of every input element on the
// page in DOM order. Buttons rendered as <input type=submit|button> carry
// their label in value, which is what the betslip matching runs against.
func jsListInputValues() string {
	return wrapJSEval(`
var els = document.querySelectorAll("input");
var values = [];
for (var i = 0; i < els.length; i++) {
  values.push(String(els[i].value || ""));
}
return JSON.stringify({ok:true,data:{values:values}});
`)
}

// jsClickInput activates the input element at the given DOM-order index.
func jsClickInput(index int) string {
	return wrapJSEval(fmt.Sprintf(`
var els = document.querySelectorAll("input");
var i = %d;
if (i >= els.length) return JSON.stringify({ok:false,error_code:"%s",error_message:"input index out of range"});
els[i].click();
return JSON.stringify({ok:true,data:{status:"clicked"}});
`, index, CodeValidation))
}

// jsClickLabeledInput clicks the first input whose value contains the given
// label (case-insensitive). Reports clicked:false when no such control exists.
func jsClickLabeledInput(label string) string {
	return wrapJSEval(fmt.Sprintf(`
var label = %s.toLowerCase();
var els = document.querySelectorAll("input");
for (var i = 0; i < els.length; i++) {
  var v = String(els[i].value || "").toLowerCase();
  if (v.indexOf(label) !== -1) {
    els[i].click();
    return JSON.stringify({ok:true,data:{clicked:true}});
  }
}
return JSON.stringify({ok:true,data:{clicked:false}});
`, jsString(label)))
}

// jsPageText returns the full visible text of the page.
func jsPageText() string {
	return wrapJSEval(`
var text = document.body ? String(document.body.innerText || "") : "";
return JSON.stringify({ok:true,data:{text:text}});
`)
}
