package api

import (
	"net/http"
)

const operatorUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Lockbox - Operator</title>
    <style>
        * { box-sizing: border-box; margin: 0; padding: 0; }
        body { font-family: monospace; background: #1a1a2e; color: #eee; height: 100vh; display: flex; flex-direction: column; }
        header { background: #16213e; padding: 12px 20px; border-bottom: 1px solid #0f3460; display: flex; justify-content: space-between; align-items: center; }
        header h1 { font-size: 16px; font-weight: normal; }
        #conn { padding: 4px 10px; border-radius: 4px; font-size: 12px; }
        #conn.connected { background: #1b4332; color: #95d5b2; }
        #conn.disconnected { background: #7f1d1d; color: #fca5a5; }
        #conn.connecting { background: #78350f; color: #fcd34d; }
        #panel { display: flex; gap: 12px; padding: 12px 20px; background: #0f172a; border-bottom: 1px solid #0f3460; flex-wrap: wrap; }
        .tile { padding: 10px 14px; border-radius: 6px; background: #16213e; min-width: 120px; }
        .tile .label { font-size: 11px; color: #6b7280; }
        .tile .value { font-size: 18px; margin-top: 4px; }
        .solved { color: #95d5b2; }
        .pending { color: #6b7280; }
        .unlocked { color: #95d5b2; }
        .locked { color: #fcd34d; }
        .fault { color: #fca5a5; }
        #events { flex: 1; overflow-y: auto; padding: 10px; }
        .event { padding: 6px 12px; margin-bottom: 4px; background: #16213e; border-radius: 4px; border-left: 3px solid #0f3460; font-size: 13px; display: flex; gap: 12px; }
        .event.level-error { border-left-color: #dc2626; background: #1f1515; }
        .event.scope-puzzle { border-left-color: #7c3aed; }
        .event.scope-lock { border-left-color: #059669; }
        .event.scope-device { border-left-color: #d97706; }
        .ts { color: #6b7280; font-size: 11px; min-width: 90px; }
        .name { color: #60a5fa; font-weight: bold; min-width: 140px; }
        .msg { color: #9ca3af; }
        footer { background: #16213e; padding: 8px 20px; border-top: 1px solid #0f3460; font-size: 11px; color: #6b7280; }
    </style>
</head>
<body>
    <header>
        <h1 id="device">Lockbox</h1>
        <span id="conn" class="connecting">connecting</span>
    </header>
    <div id="panel">
        <div class="tile"><div class="label">PUZZLE 1</div><div class="value pending" id="p-A">pending</div></div>
        <div class="tile"><div class="label">PUZZLE 2</div><div class="value pending" id="p-B">pending</div></div>
        <div class="tile"><div class="label">PUZZLE 3</div><div class="value pending" id="p-C">pending</div></div>
        <div class="tile"><div class="label">LOCK</div><div class="value locked" id="lock">locked</div></div>
        <div class="tile"><div class="label">DRIVER</div><div class="value" id="driver">-</div></div>
        <div class="tile"><div class="label">CONTROLLER</div><div class="value" id="controller">-</div></div>
    </div>
    <main id="events"></main>
    <footer><span id="count">0</span> events | boot <span id="boot">-</span></footer>
    <script>
        var eventsEl = document.getElementById('events');
        var count = 0;
        var ws = null;
        var reconnectTimer = null;

        function setText(id, text, cls) {
            var el = document.getElementById(id);
            el.textContent = text;
            if (cls !== undefined) el.className = 'value ' + cls;
        }

        function refreshStatus() {
            fetch('/status', { credentials: 'same-origin' })
                .then(function(res) { return res.json(); })
                .then(function(s) {
                    document.getElementById('device').textContent = s.device + ' (' + s.version + ')';
                    document.getElementById('boot').textContent = s.boot_id;
                    var solved = s.box.solved || [];
                    ['A', 'B', 'C'].forEach(function(id) {
                        var done = solved.indexOf(id) >= 0;
                        setText('p-' + id, done ? 'solved' : 'pending', done ? 'solved' : 'pending');
                    });
                    if (s.box.fault) {
                        setText('lock', 'FAULT', 'fault');
                        document.getElementById('lock').title = s.box.fault;
                    } else {
                        setText('lock', s.box.lock, s.box.lock);
                    }
                    setText('driver', s.driver);
                    if (s.controller) {
                        setText('controller', s.controller.connected ? 'online' : 'offline',
                            s.controller.connected ? 'unlocked' : 'fault');
                    }
                })
                .catch(function() {});
        }

        function formatTime(ts) {
            var d = new Date(ts);
            return d.toLocaleTimeString('en-US', { hour12: false }) + '.' + String(d.getMilliseconds()).padStart(3, '0');
        }

        function renderEvent(e) {
            var div = document.createElement('div');
            div.className = 'event level-' + e.level + ' scope-' + e.event.split('.')[0];
            var fields = e.fields ? JSON.stringify(e.fields) : '';
            [['ts', formatTime(e.ts)], ['name', e.event], ['msg', (e.msg || '') + ' ' + fields]].forEach(function(p) {
                var span = document.createElement('span');
                span.className = p[0];
                span.textContent = p[1];
                div.appendChild(span);
            });
            eventsEl.insertBefore(div, eventsEl.firstChild);
            document.getElementById('count').textContent = ++count;
        }

        function setConn(state) {
            var el = document.getElementById('conn');
            el.className = state;
            el.textContent = state;
        }

        function connect() {
            if (ws && ws.readyState === WebSocket.OPEN) return;
            setConn('connecting');
            var protocol = location.protocol === 'https:' ? 'wss:' : 'ws:';
            ws = new WebSocket(protocol + '//' + location.host + '/ws/events');
            ws.onopen = function() { setConn('connected'); };
            ws.onmessage = function(msg) {
                try {
                    var e = JSON.parse(msg.data);
                    renderEvent(e);
                    if (e.event.indexOf('puzzle.') === 0 || e.event.indexOf('lock.') === 0 || e.event.indexOf('device.') === 0) {
                        refreshStatus();
                    }
                } catch (err) {}
            };
            ws.onclose = function() { setConn('disconnected'); scheduleReconnect(); };
        }

        function scheduleReconnect() {
            if (reconnectTimer) return;
            reconnectTimer = setTimeout(function() { reconnectTimer = null; connect(); }, 2000);
        }

        refreshStatus();
        setInterval(refreshStatus, 5000);
        connect();
    </script>
</body>
</html>
`

// operatorUIHandler serves the operator dashboard.
func operatorUIHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(operatorUIHTML))
}
