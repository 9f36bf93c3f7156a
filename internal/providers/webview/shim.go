package webview

// shim mirrors the page side of the bridge. Callbacks are keyed by message
// id; every settlement is reported to the host through __hostSettle.
const shim = `
var MiniAppBridge = (function () {
  var pending = {};
  var seq = 0;
  function settle(id, ok, value) {
    var cb = pending[id];
    delete pending[id];
    __hostSettle(String(id), ok, String(value));
    if (!cb) return;
    if (ok && cb.onSuccess) cb.onSuccess(value);
    if (!ok && cb.onError) cb.onError(JSON.parse(value));
  }
  return {
    exec: function (action, param, onSuccess, onError) {
      var id = String(++seq);
      pending[id] = { onSuccess: onSuccess, onError: onError };
      __hostPost(JSON.stringify({ id: id, action: action, param: param === undefined ? null : param }));
      return id;
    },
    execSuccessCallback: function (id, value) { settle(id, true, value); },
    execErrorCallback: function (id, error) { settle(id, false, error); }
  };
})();
`
